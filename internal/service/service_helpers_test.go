package service

import (
	"os"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/config"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
)

func TestMain(m *testing.M) {
	// Initialize logger
	cfg := config.NewDefaultConfig()
	observability.InitializeLogger(cfg.Logger())

	exitCode := m.Run()

	observability.Sync()
	os.Exit(exitCode)
}

// MockPolicySet is a mock implementation of PolicySet.
type MockPolicySet struct {
	mock.Mock
}

func (m *MockPolicySet) For(mode string) (policy.Policy, error) {
	args := m.Called(mode)
	p, _ := args.Get(0).(policy.Policy)
	return p, args.Error(1)
}

func (m *MockPolicySet) Close() error {
	return m.Called().Error(0)
}
