package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	stringpool "github.com/ajitpratap0/fls/pkg/strings"
)

// Accepted layouts. Fractional seconds after the seconds field are accepted
// by time.Parse even when the layout omits them.
var (
	dateLayouts = []string{
		"2006-01-02",
		"1/2/2006",
	}
	timestampLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"1/2/2006 3:04:05 PM",
		"1/2/06 15:04:05",
		"2006-01-02",
		"1/2/2006",
	}
)

// ParseInt parses a base-10 signed integer that fits bitSize bits.
func ParseInt(s string, bitSize int) (int64, error) {
	return strconv.ParseInt(s, 10, bitSize)
}

// ParseUint parses a base-10 unsigned integer that fits bitSize bits.
func ParseUint(s string, bitSize int) (uint64, error) {
	return strconv.ParseUint(s, 10, bitSize)
}

// ParseFloat parses a float of the given width.
func ParseFloat(s string, bitSize int) (float64, error) {
	return strconv.ParseFloat(s, bitSize)
}

// ParseBool accepts 1/0, t/f, y/n, true/false and yes/no in any case,
// ignoring surrounding whitespace.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "y", "true", "yes":
		return true, nil
	case "0", "f", "n", "false", "no":
		return false, nil
	}
	return false, &strconv.NumError{Func: "ParseBool", Num: s, Err: strconv.ErrSyntax}
}

// ParseDate parses YYYY-MM-DD or M/D/YYYY.
func ParseDate(s string) (arrow.Date32, error) {
	t, err := parseLayouts(s, dateLayouts)
	if err != nil {
		return 0, err
	}
	return arrow.Date32FromTime(t), nil
}

// ParseTimestamp parses an ISO timestamp (date and time separated by 'T'
// or a space), M/D/YYYY h:mm:ss AM|PM or M/D/YY HH:mm:ss, each with optional
// fractional seconds, or a bare date. The result is microseconds since the
// epoch in UTC.
func ParseTimestamp(s string) (arrow.Timestamp, error) {
	t, err := parseLayouts(s, timestampLayouts)
	if err != nil {
		return 0, err
	}
	return arrow.Timestamp(t.UnixMicro()), nil
}

func parseLayouts(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// ParseDecimal parses a decimal literal into its value scaled by
// 10^scale. The literal may have at most scale fraction digits and at most
// precision-scale integer digits.
func ParseDecimal(s string, precision, scale int) (int64, error) {
	num := strings.TrimSpace(s)
	if num == "" {
		return 0, &strconv.NumError{Func: "ParseDecimal", Num: s, Err: strconv.ErrSyntax}
	}

	neg := false
	switch num[0] {
	case '-':
		neg = true
		num = num[1:]
	case '+':
		num = num[1:]
	}

	intPart, fracPart, hasDot := strings.Cut(num, ".")
	if (intPart == "" && fracPart == "") || (hasDot && strings.Contains(fracPart, ".")) {
		return 0, &strconv.NumError{Func: "ParseDecimal", Num: s, Err: strconv.ErrSyntax}
	}
	if len(fracPart) > scale {
		return 0, &strconv.NumError{Func: "ParseDecimal", Num: s, Err: errTooManyFractionDigits}
	}
	intPart = strings.TrimLeft(intPart, "0")
	if len(intPart) > precision-scale {
		return 0, &strconv.NumError{Func: "ParseDecimal", Num: s, Err: strconv.ErrRange}
	}

	var v int64
	for _, part := range []string{intPart, fracPart} {
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c < '0' || c > '9' {
				return 0, &strconv.NumError{Func: "ParseDecimal", Num: s, Err: strconv.ErrSyntax}
			}
			v = v*10 + int64(c-'0')
		}
	}
	for i := len(fracPart); i < scale; i++ {
		v *= 10
	}
	if neg {
		v = -v
	}
	return v, nil
}

type decimalError string

func (e decimalError) Error() string { return string(e) }

const errTooManyFractionDigits = decimalError("more fraction digits than the scale allows")

// FormatDate prints a date as YYYY-MM-DD.
func FormatDate(d arrow.Date32) string {
	return d.ToTime().Format("2006-01-02")
}

// FormatTimestamp prints microseconds since the epoch as
// YYYY-MM-DDTHH:MM:SS, followed by six fraction digits when the value has a
// sub-second part.
func FormatTimestamp(ts arrow.Timestamp) string {
	t := time.UnixMicro(int64(ts)).UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

// FormatDecimal prints a scaled value with exactly scale fraction digits.
func FormatDecimal(v int64, scale int) string {
	neg := v < 0
	var digits string
	if neg {
		// -v overflows for MinInt64; format the unsigned magnitude instead
		digits = strconv.FormatUint(uint64(-(v+1))+1, 10)
	} else {
		digits = strconv.FormatUint(uint64(v), 10)
	}
	if scale > 0 && len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}

	b := stringpool.GetBuilder(stringpool.Small)
	defer stringpool.PutBuilder(b, stringpool.Small)
	if neg {
		b.WriteByte('-')
	}
	if scale <= 0 {
		b.WriteString(digits)
	} else {
		b.WriteString(digits[:len(digits)-scale])
		b.WriteByte('.')
		b.WriteString(digits[len(digits)-scale:])
	}
	return stringpool.Clone(b.String())
}
