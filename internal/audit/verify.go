package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openaudit/kestrel/internal/domain"
)

// VerifyChain replays the ledger and checks every entry's hash against
// its predecessor. Intended for offline compliance review; the running
// system never reads the ledger back. Returns the number of verified
// entries.
func VerifyChain(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var prev string
	var verified int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry domain.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return verified, fmt.Errorf("entry %d: unparseable: %w", verified+1, err)
		}
		if entry.PrevHash != prev {
			return verified, fmt.Errorf("entry %d (%s): chain broken", verified+1, entry.PredictionID)
		}

		want := entry.EntryHash
		entry.EntryHash = ""
		canonical, err := json.Marshal(entry)
		if err != nil {
			return verified, err
		}
		sum := sha256.Sum256(append([]byte(prev), canonical...))
		if hex.EncodeToString(sum[:]) != want {
			return verified, fmt.Errorf("entry %d (%s): hash mismatch", verified+1, entry.PredictionID)
		}

		prev = want
		verified++
	}
	if err := scanner.Err(); err != nil {
		return verified, err
	}
	return verified, nil
}
