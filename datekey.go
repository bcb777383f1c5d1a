package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"pakrail.dev/telemetry/model"
)

// The upstream feed constructs each run's InnerKey as
//
//	<trainNumber><DDMM>9900
//
// where DDMM is the run date. The trailing "9900" is a fixed marker;
// keys without it are not run-instance keys.
const innerKeySuffix = "9900"

// DecodeDateKey extracts the run date from an InnerKey. Returns nil
// for anything that doesn't match the composite format: wrong prefix,
// wrong suffix, or an out-of-range day/month. Callers must treat nil
// as "run date unknown".
//
// The year is taken from the caller's clock: train numbers are not
// reused across a year boundary on this network, so the encoded DDMM
// always refers to the current year.
func DecodeDateKey(innerKey, trainNumber string, year int) *model.DateKey {
	if trainNumber == "" || !strings.HasPrefix(innerKey, trainNumber) {
		return nil
	}

	rest := innerKey[len(trainNumber):]
	if len(rest) != 8 || rest[4:] != innerKeySuffix {
		return nil
	}

	day, err := strconv.Atoi(rest[0:2])
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(rest[2:4])
	if err != nil {
		return nil
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil
	}

	return &model.DateKey{
		Day:     day,
		Month:   month,
		Year:    year,
		SortKey: fmt.Sprintf("%04d%02d%02d", year, month, day),
	}
}

// EncodeInnerKey builds a run-instance key from its parts. The
// inverse of DecodeDateKey; mostly useful for fixtures and for
// synthesizing keys when the feed omits them.
func EncodeInnerKey(trainNumber string, day, month int) string {
	return fmt.Sprintf("%s%02d%02d%s", trainNumber, day, month, innerKeySuffix)
}
