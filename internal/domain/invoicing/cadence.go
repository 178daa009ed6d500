package invoicing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// cadenceField is one position of a five-field cron line, with the range it
// must fall in.
type cadenceField struct {
	name string
	min  int
	max  int
}

var cadenceFields = [5]cadenceField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

type cadence struct {
	values   [5]int
	wildcard [5]bool
}

func parseCadence(expr string) (cadence, error) {
	var c cadence
	fields := strings.Fields(expr)
	if len(fields) != len(cadenceFields) {
		return c, fmt.Errorf("cadence %q must have five fields", expr)
	}
	for i, f := range fields {
		if f == "*" {
			c.wildcard[i] = true
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < cadenceFields[i].min || n > cadenceFields[i].max {
			return c, fmt.Errorf("cadence %q: invalid %s field %q", expr, cadenceFields[i].name, f)
		}
		c.values[i] = n
	}
	return c, nil
}

// ValidateCadence rejects malformed cadence expressions before they are
// stored.
func ValidateCadence(expr string) error {
	_, err := parseCadence(expr)
	return err
}

// CadenceMatches reports whether a cadence expression fires on the given
// day. Invoices are generated by a daily job, so only the date fields (day
// of month, month, day of week) are consulted; minute and hour are
// validated but otherwise ignored. Day-of-week numbering is cron's, Sunday
// as 0, which is also time.Weekday's.
//
// A malformed expression never fires. It is logged and reported as no
// match so that one bad row cannot stop a generation run.
func CadenceMatches(expr string, on time.Time, log zerolog.Logger) bool {
	c, err := parseCadence(expr)
	if err != nil {
		log.Error().Err(err).Msg("unusable cadence expression")
		return false
	}
	if !c.wildcard[2] && c.values[2] != on.Day() {
		return false
	}
	if !c.wildcard[3] && c.values[3] != int(on.Month()) {
		return false
	}
	if !c.wildcard[4] && c.values[4] != int(on.Weekday()) {
		return false
	}
	return true
}
