package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
)

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	t.Run("DevEnablesDebug", func(t *testing.T) {
		logger := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "ai-deep-researcher"})
		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(t.Context(), -4))
	})

	t.Run("ProdDefaultsToInfo", func(t *testing.T) {
		logger := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "ai-deep-researcher"})
		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(t.Context(), -4))
		assert.True(t, logger.Enabled(t.Context(), 0))
	})
}
