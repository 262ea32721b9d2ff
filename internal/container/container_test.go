package container

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scantron-grader/internal/config"
)

func testConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("store", store)
	v.Set("db", filepath.Join(t.TempDir(), "grades.db"))
	v.Set("answer-keys", t.TempDir())
	v.Set("ocr", false)
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestNewContainer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, store := range []string{config.StoreMemory, config.StoreSQLite} {
		t.Run(store, func(t *testing.T) {
			c, err := NewContainer(testConfig(t, store))
			require.NoError(t, err)
			defer func() { assert.NoError(t, c.Close()) }()

			w := httptest.NewRecorder()
			c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assignments/A1/grades", nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"assignmentId":"A1"`)

			assert.Equal(t, int64(0), c.Metrics()["total_batches"])
		})
	}
}
