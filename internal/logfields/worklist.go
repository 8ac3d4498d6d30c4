package logfields

import "go.uber.org/zap"

func WorklistFile(val string) zap.Field {
	return zap.String("worklist.file", val)
}

func Section(val string) zap.Field {
	return zap.String("worklist.section", val)
}

func ItemIndex(val int) zap.Field {
	return zap.Int("worklist.item_index", val)
}
