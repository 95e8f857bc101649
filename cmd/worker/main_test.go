package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/app"
	tienditatesting "github.com/nahum29/tiendita/testing"
)

func TestMain(m *testing.M) {
	tienditatesting.TestMain(m)
}

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.TestMode)
	main()
}
