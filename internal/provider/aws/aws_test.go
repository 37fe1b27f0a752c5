package aws

import (
	"context"
	"io"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/models"
)

type MockEC2API struct {
	mock.Mock
}

func (m *MockEC2API) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DescribeVpcsOutput), args.Error(1)
}

func (m *MockEC2API) CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.CreateSecurityGroupOutput), args.Error(1)
}

func (m *MockEC2API) AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.AuthorizeSecurityGroupIngressOutput), args.Error(1)
}

func (m *MockEC2API) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DescribeSecurityGroupsOutput), args.Error(1)
}

func (m *MockEC2API) DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DeleteSecurityGroupOutput), args.Error(1)
}

func (m *MockEC2API) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DescribeImagesOutput), args.Error(1)
}

func (m *MockEC2API) ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.ImportKeyPairOutput), args.Error(1)
}

func (m *MockEC2API) DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DescribeKeyPairsOutput), args.Error(1)
}

func (m *MockEC2API) DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DeleteKeyPairOutput), args.Error(1)
}

func (m *MockEC2API) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.RunInstancesOutput), args.Error(1)
}

func (m *MockEC2API) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.DescribeInstancesOutput), args.Error(1)
}

func (m *MockEC2API) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ec2.TerminateInstancesOutput), args.Error(1)
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

func newTestProvider(api EC2API) *Provider {
	return New(api, testLogger(), "us-east-1", 10*time.Millisecond, 100*time.Millisecond)
}

func TestProvision_Success(t *testing.T) {
	mockAPI := &MockEC2API{}
	p := newTestProvider(mockAPI)
	spec := testSpec()

	mockAPI.On("DescribeVpcs", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeVpcsOutput{
		Vpcs: []types.Vpc{{VpcId: awssdk.String("vpc-123")}},
	}, nil)
	mockAPI.On("CreateSecurityGroup", mock.Anything, mock.MatchedBy(func(in *ec2.CreateSecurityGroupInput) bool {
		return awssdk.ToString(in.GroupName) == "armlab-fw-1700000000" && awssdk.ToString(in.VpcId) == "vpc-123"
	}), mock.Anything).Return(&ec2.CreateSecurityGroupOutput{GroupId: awssdk.String("sg-123")}, nil)
	mockAPI.On("AuthorizeSecurityGroupIngress", mock.Anything, mock.MatchedBy(func(in *ec2.AuthorizeSecurityGroupIngressInput) bool {
		return len(in.IpPermissions) == len(models.LabPorts)
	}), mock.Anything).Return(&ec2.AuthorizeSecurityGroupIngressOutput{}, nil)
	mockAPI.On("DescribeImages", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeImagesOutput{
		Images: []types.Image{
			{ImageId: awssdk.String("ami-old"), CreationDate: awssdk.String("2024-01-01T00:00:00.000Z")},
			{ImageId: awssdk.String("ami-new"), CreationDate: awssdk.String("2025-06-01T00:00:00.000Z")},
		},
	}, nil)
	mockAPI.On("ImportKeyPair", mock.Anything, mock.MatchedBy(func(in *ec2.ImportKeyPairInput) bool {
		return awssdk.ToString(in.KeyName) == "armlab-key-1700000000"
	}), mock.Anything).Return(&ec2.ImportKeyPairOutput{}, nil)
	mockAPI.On("RunInstances", mock.Anything, mock.MatchedBy(func(in *ec2.RunInstancesInput) bool {
		return awssdk.ToString(in.ImageId) == "ami-new" && in.InstanceType == types.InstanceTypeT4gSmall
	}), mock.Anything).Return(&ec2.RunInstancesOutput{
		Instances: []types.Instance{{InstanceId: awssdk.String("i-123")}},
	}, nil)
	mockAPI.On("DescribeInstances", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: []types.Instance{
					{
						InstanceId:       awssdk.String("i-123"),
						PublicIpAddress:  awssdk.String("1.2.3.4"),
						PrivateIpAddress: awssdk.String("10.0.0.5"),
						InstanceType:     types.InstanceTypeT4gSmall,
						State:            &types.InstanceState{Name: types.InstanceStateNameRunning},
						Placement:        &types.Placement{AvailabilityZone: awssdk.String("us-east-1a")},
						Tags: []types.Tag{
							{Key: awssdk.String("Name"), Value: awssdk.String("armlab-vm-1700000000")},
						},
					},
				},
			},
		},
	}, nil)

	inst, err := p.Provision(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "i-123", inst.ID)
	assert.Equal(t, "1.2.3.4", inst.PublicIPAddress)
	assert.Equal(t, "armlab-vm-1700000000", inst.Name)
	assert.Equal(t, models.ProviderAWS, inst.Provider)
	assert.Equal(t, "ubuntu", inst.AdminUser)
	mockAPI.AssertExpectations(t)
}

func TestProvision_NoDefaultVPC(t *testing.T) {
	mockAPI := &MockEC2API{}
	p := newTestProvider(mockAPI)

	mockAPI.On("DescribeVpcs", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeVpcsOutput{}, nil)

	_, err := p.Provision(context.Background(), testSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no default VPC")
}

func TestWaitForPublicIP_Timeout(t *testing.T) {
	mockAPI := &MockEC2API{}
	p := newTestProvider(mockAPI)

	mockAPI.On("DescribeInstances", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{Instances: []types.Instance{{InstanceId: awssdk.String("i-123")}}},
		},
	}, nil)

	_, err := p.waitForPublicIP(context.Background(), "i-123", "1700000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrIPTimeout)
}

func TestDestroy_RemovesRunResources(t *testing.T) {
	mockAPI := &MockEC2API{}
	p := newTestProvider(mockAPI)

	running := &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: []types.Instance{
					{
						InstanceId: awssdk.String("i-123"),
						State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
					},
				},
			},
		},
	}
	terminated := &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: []types.Instance{
					{
						InstanceId: awssdk.String("i-123"),
						State:      &types.InstanceState{Name: types.InstanceStateNameTerminated},
					},
				},
			},
		},
	}

	mockAPI.On("DescribeInstances", mock.Anything, mock.Anything, mock.Anything).Return(running, nil).Once()
	mockAPI.On("TerminateInstances", mock.Anything, mock.MatchedBy(func(in *ec2.TerminateInstancesInput) bool {
		return len(in.InstanceIds) == 1 && in.InstanceIds[0] == "i-123"
	}), mock.Anything).Return(&ec2.TerminateInstancesOutput{}, nil)
	mockAPI.On("DescribeInstances", mock.Anything, mock.Anything, mock.Anything).Return(terminated, nil)
	mockAPI.On("DescribeKeyPairs", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeKeyPairsOutput{
		KeyPairs: []types.KeyPairInfo{
			{KeyPairId: awssdk.String("key-123"), KeyName: awssdk.String("armlab-key-1700000000")},
		},
	}, nil)
	mockAPI.On("DeleteKeyPair", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DeleteKeyPairOutput{}, nil)
	mockAPI.On("DescribeSecurityGroups", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DescribeSecurityGroupsOutput{
		SecurityGroups: []types.SecurityGroup{
			{GroupId: awssdk.String("sg-123"), GroupName: awssdk.String("armlab-fw-1700000000")},
		},
	}, nil)
	mockAPI.On("DeleteSecurityGroup", mock.Anything, mock.Anything, mock.Anything).Return(&ec2.DeleteSecurityGroupOutput{}, nil)

	err := p.Destroy(context.Background(), "1700000000")
	require.NoError(t, err)
	mockAPI.AssertExpectations(t)
}

func TestList_FiltersAndSorts(t *testing.T) {
	mockAPI := &MockEC2API{}
	p := newTestProvider(mockAPI)

	mockAPI.On("DescribeInstances", mock.Anything, mock.MatchedBy(func(in *ec2.DescribeInstancesInput) bool {
		for _, f := range in.Filters {
			if awssdk.ToString(f.Name) == "tag:"+models.ManagedByKey {
				return true
			}
		}
		return false
	}), mock.Anything).Return(&ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: []types.Instance{
					{
						InstanceId: awssdk.String("i-2"),
						State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
						Tags: []types.Tag{
							{Key: awssdk.String("Name"), Value: awssdk.String("armlab-vm-2")},
							{Key: awssdk.String(models.RunIDKey), Value: awssdk.String("2")},
						},
					},
					{
						InstanceId: awssdk.String("i-1"),
						State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
						Tags: []types.Tag{
							{Key: awssdk.String("Name"), Value: awssdk.String("armlab-vm-1")},
							{Key: awssdk.String(models.RunIDKey), Value: awssdk.String("1")},
						},
					},
				},
			},
		},
	}, nil)

	instances, err := p.List(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "armlab-vm-1", instances[0].Name)
	assert.Equal(t, "1", instances[0].RunID)
	assert.Equal(t, "armlab-vm-2", instances[1].Name)
}
