package reliability

import (
	"errors"
	"testing"

	"github.com/aristath/custodian/internal/database"
	testhelpers "github.com/aristath/custodian/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeSpace(free uint64) func(string) (*disk.UsageStat, error) {
	return func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: free}, nil
	}
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	portfolioDB, cleanupPortfolio := testhelpers.NewTestDB(t, "portfolio")
	defer cleanupPortfolio()
	clientDB, cleanupClient := testhelpers.NewTestDB(t, "client_data")
	defer cleanupClient()

	job := NewDailyMaintenanceJob(map[string]*database.DB{
		"portfolio":   portfolioDB,
		"client_data": clientDB,
	}, t.TempDir(), zerolog.Nop())
	job.diskUsage = freeSpace(100 << 30)

	assert.Equal(t, "daily_maintenance", job.Name())
	assert.Equal(t, []string{"client_data", "portfolio"}, job.names())
	require.NoError(t, job.Run())
}

func TestDailyMaintenanceJob_DiskSpace(t *testing.T) {
	job := NewDailyMaintenanceJob(nil, t.TempDir(), zerolog.Nop())

	job.diskUsage = freeSpace(100 << 20)
	assert.Error(t, job.Run())

	job.diskUsage = freeSpace(2 << 30)
	assert.NoError(t, job.Run())

	job.diskUsage = func(string) (*disk.UsageStat, error) { return nil, errors.New("no such device") }
	assert.Error(t, job.Run())
}

func TestDailyMaintenanceJob_RealDisk(t *testing.T) {
	job := NewDailyMaintenanceJob(nil, t.TempDir(), zerolog.Nop())
	usage, err := job.diskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, usage.Total)
}
