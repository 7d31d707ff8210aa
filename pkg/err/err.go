package errprocess

import (
	"errors"

	"github.com/spoonbobo/talkact-sub002/pkg/logger"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
