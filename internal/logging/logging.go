package logging

import (
	"log"
	"os"
)

// New returns the process logger.
func New() *log.Logger {
	return log.New(os.Stdout, "synthmigrate ", log.LstdFlags|log.LUTC)
}
