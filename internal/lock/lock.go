// Package lock provides a guard that prevents running multiple batch runs at
// the same time.
//
// The state of the lock is kept in memory and mirrored into a lock file, to
// make it visible for other invocations of the program.
package lock

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/logfields"
)

const loggerName = "lock"

// ErrLocked is returned by Do when the lock is held already.
var ErrLocked = errors.New("another run is in progress")

// Lock is a single-instance lock.
// The zero value is not usable, create instances with New.
type Lock struct {
	fs   afero.Fs
	path string

	mu   sync.Mutex
	held bool

	logger *zap.Logger
}

// New returns a Lock that is backed by the file at path.
// If path is empty, the lock only exists in memory.
func New(fs afero.Fs, path string) *Lock {
	return &Lock{
		fs:     fs,
		path:   path,
		logger: zap.L().Named(loggerName),
	}
}

// Acquire marks the lock as held.
// If it is held already, false is returned and a message is logged.
func (l *Lock) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		l.logBusy("the lock is held by this process")
		return false
	}

	if l.path != "" {
		err := l.createLockFile()
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				l.logBusy("the lock file exists")
				return false
			}

			l.logger.Error(
				"creating lock file failed",
				logfields.Event("lock_file_creation_failed"),
				zap.String("lock_file", l.path),
				zap.Error(err),
			)

			return false
		}
	}

	l.held = true

	l.logger.Debug("lock acquired", logfields.Event("lock_acquired"))

	return true
}

func (l *Lock) logBusy(reason string) {
	l.logger.Info(
		"another run is still in progress, wait for it to finish or run with --cancel to clear the lock",
		logfields.Event("lock_busy"),
		zap.String("reason", reason),
		zap.String("lock_file", l.path),
	)
}

func (l *Lock) createLockFile() error {
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	f, err := l.fs.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	_, err = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = l.fs.Remove(l.path)
		return err
	}

	return nil
}

// Release clears the lock unconditionally.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false

	if l.path == "" {
		return
	}

	err := l.fs.Remove(l.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn(
			"removing lock file failed",
			logfields.Event("lock_file_removal_failed"),
			zap.String("lock_file", l.path),
			zap.Error(err),
		)
		return
	}

	l.logger.Debug("lock released", logfields.Event("lock_released"))
}

// Cancel clears a lock that might be stuck.
// It does not stop a running batch run.
func (l *Lock) Cancel() {
	l.logger.Info("clearing lock", logfields.Event("lock_cancelled"), zap.String("lock_file", l.path))
	l.Release()
}

// Held returns true if the lock is held by this process.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}

// Do runs fn while holding the lock.
// If the lock can not be acquired ErrLocked is returned and fn is not run.
// The lock is released when fn returns or panics.
func (l *Lock) Do(fn func() error) error {
	if !l.Acquire() {
		return ErrLocked
	}

	defer l.Release()

	return fn()
}
