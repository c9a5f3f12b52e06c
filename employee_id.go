package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

const (
	defaultEmployeeIDPrefix = "COU"
	defaultEmployeeIDWidth  = 4
)

// EmployeeIDGenerator hands out PREFIX-YEAR-NNNN ids, numbered per year
type EmployeeIDGenerator struct {
	couriers Couriers
	prefix   string
	width    int
}

func NewEmployeeIDGenerator(couriers Couriers, prefix string, width int) *EmployeeIDGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = defaultEmployeeIDPrefix
	}
	if width <= 0 {
		width = defaultEmployeeIDWidth
	}
	return &EmployeeIDGenerator{couriers: couriers, prefix: prefix, width: width}
}

// NextTx counts the ids already issued for year and returns the next one.
// Two approvals racing on the same number are caught by the unique
// constraint on employee_id.
func (g *EmployeeIDGenerator) NextTx(ctx context.Context, tx bun.IDB, year int) (string, error) {
	issued, err := g.couriers.CountEmployeeIDsWithPrefixTx(ctx, tx, fmt.Sprintf("%s-%d-", g.prefix, year))
	if err != nil {
		return "", err
	}
	return FormatEmployeeID(g.prefix, year, issued+1, g.width), nil
}

// FormatEmployeeID renders an employee id, zero padding seq to width
func FormatEmployeeID(prefix string, year, seq, width int) string {
	return fmt.Sprintf("%s-%d-%0*d", prefix, year, width, seq)
}
