package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-courier-auth"
)

func TestFormatEmployeeID(t *testing.T) {
	assert.Equal(t, "COU-2025-0001", auth.FormatEmployeeID("COU", 2025, 1, 4))
	assert.Equal(t, "COU-2025-0420", auth.FormatEmployeeID("COU", 2025, 420, 4))
	assert.Equal(t, "COU-2026-12345", auth.FormatEmployeeID("COU", 2026, 12345, 4), "sequence outgrows the padding")
	assert.Equal(t, "DRV-2025-007", auth.FormatEmployeeID("DRV", 2025, 7, 3))
}

func TestEmployeeIDGenerator_NextTx(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gen := auth.NewEmployeeIDGenerator(env.repos.Couriers(), " cou ", 0)

	next, err := gen.NextTx(ctx, env.repos.DB(), 2025)
	require.NoError(t, err)
	assert.Equal(t, "COU-2025-0001", next)

	env.onboardCourier(t, employeeMessage("01"), "otieno_a")
	env.onboardCourier(t, freelancerMessage("02"), "akinyi_b")

	next, err = gen.NextTx(ctx, env.repos.DB(), 2025)
	require.NoError(t, err)
	assert.Equal(t, "COU-2025-0002", next, "freelancers do not consume numbers")

	next, err = gen.NextTx(ctx, env.repos.DB(), 2026)
	require.NoError(t, err)
	assert.Equal(t, "COU-2026-0001", next, "numbering restarts every year")
}
