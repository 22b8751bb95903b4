package util

import (
	"log"
	"strings"

	"github.com/google/uuid"
)

func GenerateUUID() string {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		log.Fatalf("Failed to generate UUID: %v", err)
	}
	return newUUID.String()
}

// GenerateTransactionID returns an upper-case id such as "CASH-9F1C...".
func GenerateTransactionID(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(GenerateUUID(), "-", ""))
	if prefix == "" {
		return id
	}
	return strings.ToUpper(prefix) + "-" + id
}
