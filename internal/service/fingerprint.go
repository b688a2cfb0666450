package service

import (
	"crypto/md5"
	"fmt"

	"github.com/arghaM/famfolioz/internal/statement"
)

// TxHash derives the deduplication identity for a transaction.
//
// sequence > 0 appends a |seq{n} suffix so transactions sharing the same
// (folio, date, type, units, balance) fingerprint get distinct hashes.
// sequence 0 reproduces the suffix-free legacy form, keeping hashes stable
// for rows persisted before sequencing existed.
func TxHash(folioNumber, date string, txType statement.TxType, units, balance float64, sequence int) string {
	data := fmt.Sprintf("%s|%s|%s|%.4f|%.4f", folioNumber, date, txType, units, balance)
	if sequence > 0 {
		data += fmt.Sprintf("|seq%d", sequence)
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

type fingerprint struct {
	folio   string
	date    string
	txType  statement.TxType
	units   string
	balance string
}

// SequenceNumbers assigns disambiguation ordinals to records that share a
// hash fingerprint, walking records in source order. The first occurrence
// gets 0, the second 1, and so on. The result is sparse: only non-zero
// entries are present, so callers use seq[i] with the zero default.
func SequenceNumbers(records []statement.RawRecord) map[int]int {
	counts := make(map[fingerprint]int)
	seq := make(map[int]int)
	for i := range records {
		r := &records[i]
		fp := fingerprint{
			folio:   r.Folio,
			date:    r.DateKey(),
			txType:  r.Type,
			units:   fmt.Sprintf("%.4f", r.Units),
			balance: fmt.Sprintf("%.4f", r.Balance),
		}
		if n := counts[fp]; n > 0 {
			seq[i] = n
		}
		counts[fp]++
	}
	return seq
}
