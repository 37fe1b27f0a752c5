package gcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	compute "google.golang.org/api/compute/v1"

	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/models"
)

type MockComputeAPI struct {
	mock.Mock
}

func (m *MockComputeAPI) InsertFirewall(ctx context.Context, project string, fw *compute.Firewall) (*compute.Operation, error) {
	args := m.Called(ctx, project, fw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error) {
	args := m.Called(ctx, project, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error) {
	args := m.Called(ctx, project)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*compute.Firewall), args.Error(1)
}

func (m *MockComputeAPI) GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error) {
	args := m.Called(ctx, project, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) InsertInstance(ctx context.Context, project, zone string, inst *compute.Instance) (*compute.Operation, error) {
	args := m.Called(ctx, project, zone, inst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	args := m.Called(ctx, project, zone, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error) {
	args := m.Called(ctx, project, zone, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Instance), args.Error(1)
}

func (m *MockComputeAPI) ListInstances(ctx context.Context, project, zone, filter string) ([]*compute.Instance, error) {
	args := m.Called(ctx, project, zone, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*compute.Instance), args.Error(1)
}

func (m *MockComputeAPI) GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	args := m.Called(ctx, project, zone, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Operation), args.Error(1)
}

func (m *MockComputeAPI) GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error) {
	args := m.Called(ctx, project, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compute.Image), args.Error(1)
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSpec() models.VMSpec {
	return models.VMSpec{
		NamePrefix:   "armlab",
		RunID:        "1700000000",
		SSHPublicKey: "ssh-ed25519 AAAA test@armlab",
		Ports:        models.LabPorts,
	}
}

func newTestProvider(api ComputeAPI) *Provider {
	return New(api, testLogger(), "lab-project", "us-central1-a", 10*time.Millisecond, 100*time.Millisecond)
}

func doneOp(name string) *compute.Operation {
	return &compute.Operation{Name: name, Status: "DONE"}
}

func TestProvision_Success(t *testing.T) {
	mockAPI := &MockComputeAPI{}
	p := newTestProvider(mockAPI)
	spec := testSpec()

	mockAPI.On("GetImageFromFamily", mock.Anything, "ubuntu-os-cloud", "ubuntu-2204-lts-arm64").
		Return(&compute.Image{SelfLink: "projects/ubuntu-os-cloud/global/images/ubuntu-2204-jammy-arm64"}, nil)
	mockAPI.On("InsertFirewall", mock.Anything, "lab-project", mock.MatchedBy(func(fw *compute.Firewall) bool {
		return fw.Name == "armlab-fw-1700000000" &&
			len(fw.Allowed) == 1 &&
			len(fw.Allowed[0].Ports) == len(models.LabPorts) &&
			fw.Allowed[0].Ports[0] == "22"
	})).Return(doneOp("op-fw"), nil)
	mockAPI.On("InsertInstance", mock.Anything, "lab-project", "us-central1-a", mock.MatchedBy(func(inst *compute.Instance) bool {
		return inst.Name == "armlab-vm-1700000000" &&
			inst.MachineType == "zones/us-central1-a/machineTypes/t2a-standard-1" &&
			inst.Labels[models.RunIDKey] == "1700000000"
	})).Return(doneOp("op-vm"), nil)
	mockAPI.On("GetInstance", mock.Anything, "lab-project", "us-central1-a", "armlab-vm-1700000000").
		Return(&compute.Instance{
			Id:     12345,
			Name:   "armlab-vm-1700000000",
			Status: "RUNNING",
			Labels: map[string]string{models.RunIDKey: "1700000000"},
			NetworkInterfaces: []*compute.NetworkInterface{
				{
					NetworkIP:     "10.128.0.3",
					AccessConfigs: []*compute.AccessConfig{{NatIP: "34.1.2.3"}},
				},
			},
		}, nil)

	inst, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "34.1.2.3", inst.PublicIPAddress)
	assert.Equal(t, "10.128.0.3", inst.PrivateIPAddress)
	assert.Equal(t, models.ProviderGCP, inst.Provider)
	assert.Equal(t, "us-central1-a", inst.Location)
	mockAPI.AssertExpectations(t)
}

func TestWaitForOperation_Failure(t *testing.T) {
	mockAPI := &MockComputeAPI{}
	p := newTestProvider(mockAPI)

	op := &compute.Operation{
		Name:   "op-2",
		Status: "DONE",
		Error: &compute.OperationError{
			Errors: []*compute.OperationErrorErrors{{Message: "quota exceeded"}},
		},
	}

	err := p.waitForZoneOperation(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWaitForPublicIP_Timeout(t *testing.T) {
	mockAPI := &MockComputeAPI{}
	p := newTestProvider(mockAPI)

	mockAPI.On("GetInstance", mock.Anything, "lab-project", "us-central1-a", "armlab-vm-1700000000").
		Return(&compute.Instance{Name: "armlab-vm-1700000000", Status: "RUNNING"}, nil)

	_, err := p.waitForPublicIP(context.Background(), testSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrIPTimeout)
}

func TestDestroy_DeletesInstanceAndMatchingFirewall(t *testing.T) {
	mockAPI := &MockComputeAPI{}
	p := newTestProvider(mockAPI)

	mockAPI.On("ListInstances", mock.Anything, "lab-project", "us-central1-a", "labels."+models.RunIDKey+"=1700000000").
		Return([]*compute.Instance{{Name: "armlab-vm-1700000000"}}, nil)
	mockAPI.On("DeleteInstance", mock.Anything, "lab-project", "us-central1-a", "armlab-vm-1700000000").
		Return(doneOp("op-del"), nil)
	mockAPI.On("ListFirewalls", mock.Anything, "lab-project").
		Return([]*compute.Firewall{
			{Name: "armlab-fw-1700000000"},
			{Name: "unrelated-rule"},
		}, nil)
	mockAPI.On("DeleteFirewall", mock.Anything, "lab-project", "armlab-fw-1700000000").
		Return(doneOp("op-del-fw"), nil)

	err := p.Destroy(context.Background(), "1700000000")
	require.NoError(t, err)
	mockAPI.AssertExpectations(t)
	mockAPI.AssertNotCalled(t, "DeleteFirewall", mock.Anything, "lab-project", "unrelated-rule")
}

func TestList_MapsInstances(t *testing.T) {
	mockAPI := &MockComputeAPI{}
	p := newTestProvider(mockAPI)

	mockAPI.On("ListInstances", mock.Anything, "lab-project", "us-central1-a", "labels."+models.ManagedByKey+"="+models.ManagedByValue).
		Return([]*compute.Instance{
			{
				Id:                938201,
				Name:              "armlab-vm-1",
				Status:            "RUNNING",
				MachineType:       "zones/us-central1-a/machineTypes/t2a-standard-1",
				CreationTimestamp: "2026-08-01T10:00:00Z",
				Labels:            map[string]string{models.RunIDKey: "1"},
			},
		}, nil)

	instances, err := p.List(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "armlab-vm-1", instances[0].Name)
	assert.Equal(t, "t2a-standard-1", instances[0].MachineType)
	assert.Equal(t, "1", instances[0].RunID)
	assert.False(t, instances[0].LaunchedAt.IsZero())
}
