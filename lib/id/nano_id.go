package id

import (
	crand "crypto/rand"
	"strconv"
	"sync"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

// NanoIDGen generates the url-safe random ids, safe for concurrent use.
type NanoIDGen func() string

var nanoIDAlphabet = [64]byte{
	'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H',
	'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P',
	'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X',
	'Y', 'Z', 'a', 'b', 'c', 'd', 'e', 'f',
	'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n',
	'o', 'p', 'q', 'r', 's', 't', 'u', 'v',
	'w', 'x', 'y', 'z', '0', '1', '2', '3',
	'4', '5', '6', '7', '8', '9', '-', '_',
}

const nanoIDBatch = 32

// NewNanoIDGen reads the random bytes in batches of 32 ids.
func NewNanoIDGen(length int) (NanoIDGen, error) {
	if length < 2 || length > 255 {
		return nil, infra.NewErrorStack("invalid nano-id length " + strconv.Itoa(length))
	}

	buf := make([]byte, length*nanoIDBatch)
	if _, err := crand.Read(buf); err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "[nano-id] pre-allocate bytes failed")
	}
	offset := 0
	mask := byte(len(nanoIDAlphabet) - 1)

	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()

		if offset == len(buf) {
			if _, err := crand.Read(buf); /* impossible */ err != nil {
				panic(infra.WrapErrorStackWithMessage(err, "[nano-id] run out of random bytes"))
			}
			offset = 0
		}
		nanoID := make([]byte, length)
		for i := range nanoID {
			nanoID[i] = nanoIDAlphabet[buf[offset+i]&mask]
		}
		offset += length
		return string(nanoID)
	}, nil
}
