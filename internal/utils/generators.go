package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateReceipt returns the default receipt used when the caller sends none.
func GenerateReceipt() string {
	return fmt.Sprintf("order_%d", time.Now().UnixNano())
}

func GenerateEventID() string {
	return uuid.NewString()
}
