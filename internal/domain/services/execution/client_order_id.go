package execution

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const clientOrderIDPrefix = "tp-"

// ClientOrderID derives the exchange client order id from the execution id.
// The same execution always maps to the same id, which is what lets a retry find
// an order whose placement outcome was lost.
func ClientOrderID(executionID uuid.UUID) string {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// 16 is a valid size and there is no key
		panic(err)
	}
	h.Write(executionID[:])
	return clientOrderIDPrefix + hex.EncodeToString(h.Sum(nil))
}
