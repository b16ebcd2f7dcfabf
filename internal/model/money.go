package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Money денежная сумма в центах (NUMERIC(12,2) в БД)
type Money int64

// Dollars создаёт сумму из целых долларов
func Dollars(d int64) Money {
	return Money(d * 100)
}

// Mul умножает сумму на количество
func (m Money) Mul(n int) Money {
	return m * Money(n)
}

// String форматирует сумму как "250.00"
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Format форматирует цену для показа пользователю, без центов если они равны 0
func (m Money) Format() string {
	if m%100 == 0 {
		return fmt.Sprintf("$%d", int64(m)/100)
	}
	return "$" + m.String()
}

// ParseMoney разбирает строку вида "49.99" или "50"
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	m := Money(w*100 + f)
	if neg {
		m = -m
	}
	return m, nil
}
