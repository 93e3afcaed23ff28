package notification

import (
	"time"

	"github.com/dropwing/dropwing-go/logger"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

func init() {
	logger.IsTest = true
}
