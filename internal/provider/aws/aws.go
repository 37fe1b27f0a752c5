package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/instruqt/armlab/internal/config"
	"github.com/instruqt/armlab/internal/provider"
	"github.com/instruqt/armlab/models"
)

const ProviderName = "aws"

const (
	// Graviton burstable type, the AWS equivalent of the lab's small
	// ARM machines on the other clouds.
	instanceType = types.InstanceTypeT4gSmall

	// Canonical's AWS account, used to look up Ubuntu 22.04 arm64 AMIs.
	canonicalOwnerID = "099720109477"
	ubuntuNameFilter = "ubuntu/images/hvm-ssd/ubuntu-jammy-22.04-arm64-server-*"

	adminUser = "ubuntu"
)

// Provider provisions lab VMs on EC2.
type Provider struct {
	client       EC2API
	log          logrus.FieldLogger
	region       string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

var _ provider.Provider = (*Provider)(nil)

// NewFromConfig loads the SDK default credential chain and returns an EC2
// backed provider.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (provider.Provider, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Provider{
		client:       ec2.NewFromConfig(awsCfg),
		log:          logger,
		region:       awsCfg.Region,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}, nil
}

// New wires an existing EC2 client; used by tests.
func New(client EC2API, logger logrus.FieldLogger, region string, pollInterval, pollTimeout time.Duration) *Provider {
	return &Provider{
		client:       client,
		log:          logger,
		region:       region,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

func (p *Provider) Name() models.CloudProvider { return models.ProviderAWS }

func (p *Provider) Provision(ctx context.Context, spec models.VMSpec) (*models.Instance, error) {
	groupID, err := p.createSecurityGroup(ctx, spec)
	if err != nil {
		return nil, err
	}

	imageID, err := p.findUbuntuImage(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.importKeyPair(ctx, spec); err != nil {
		return nil, err
	}

	instanceID, err := p.runInstance(ctx, spec, imageID, groupID)
	if err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{"instance_id": instanceID, "run_id": spec.RunID}).
		Info("Instance launched, waiting for public IP")
	return p.waitForPublicIP(ctx, instanceID, spec.RunID)
}

func (p *Provider) createSecurityGroup(ctx context.Context, spec models.VMSpec) (string, error) {
	p.log.Debug("Looking up default VPC")
	vpcs, err := p.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{Name: awssdk.String("is-default"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return "", handleAWSError(err)
	}
	if len(vpcs.Vpcs) == 0 {
		return "", fmt.Errorf("no default VPC found in region %s", p.region)
	}

	name := spec.FirewallName()
	p.log.WithField("security_group", name).Info("Creating security group")
	out, err := p.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   awssdk.String(name),
		Description: awssdk.String(fmt.Sprintf("Lab ports for armlab run %s", spec.RunID)),
		VpcId:       vpcs.Vpcs[0].VpcId,
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeSecurityGroup,
				Tags:         runTags(spec.RunID, name),
			},
		},
	})
	if err != nil {
		return "", handleAWSError(err)
	}

	permissions := lo.Map(spec.Ports, func(port int32, _ int) types.IpPermission {
		return types.IpPermission{
			IpProtocol: awssdk.String("tcp"),
			FromPort:   awssdk.Int32(port),
			ToPort:     awssdk.Int32(port),
			IpRanges: []types.IpRange{
				{
					CidrIp:      awssdk.String("0.0.0.0/0"),
					Description: awssdk.String(fmt.Sprintf("Lab port %d", port)),
				},
			},
		}
	})

	_, err = p.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       out.GroupId,
		IpPermissions: permissions,
	})
	if err != nil {
		return "", handleAWSError(err)
	}

	return awssdk.ToString(out.GroupId), nil
}

// findUbuntuImage returns the newest Canonical Ubuntu 22.04 arm64 AMI.
func (p *Provider) findUbuntuImage(ctx context.Context) (string, error) {
	images, err := p.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{canonicalOwnerID},
		Filters: []types.Filter{
			{Name: awssdk.String("name"), Values: []string{ubuntuNameFilter}},
			{Name: awssdk.String("architecture"), Values: []string{"arm64"}},
			{Name: awssdk.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return "", handleAWSError(err)
	}
	if len(images.Images) == 0 {
		return "", fmt.Errorf("no Ubuntu 22.04 arm64 AMI found in region %s", p.region)
	}

	sort.Slice(images.Images, func(i, j int) bool {
		return awssdk.ToString(images.Images[i].CreationDate) > awssdk.ToString(images.Images[j].CreationDate)
	})

	imageID := awssdk.ToString(images.Images[0].ImageId)
	p.log.WithField("image_id", imageID).Debug("Selected Ubuntu AMI")
	return imageID, nil
}

func (p *Provider) importKeyPair(ctx context.Context, spec models.VMSpec) error {
	name := spec.KeyName()
	p.log.WithField("key_name", name).Info("Importing SSH key pair")
	_, err := p.client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           awssdk.String(name),
		PublicKeyMaterial: []byte(spec.SSHPublicKey),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeKeyPair,
				Tags:         runTags(spec.RunID, name),
			},
		},
	})
	if err != nil {
		return handleAWSError(err)
	}
	return nil
}

func (p *Provider) runInstance(ctx context.Context, spec models.VMSpec, imageID, groupID string) (string, error) {
	name := spec.InstanceName()
	p.log.WithField("instance_name", name).Info("Launching instance")
	out, err := p.client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:          awssdk.String(imageID),
		InstanceType:     instanceType,
		KeyName:          awssdk.String(spec.KeyName()),
		SecurityGroupIds: []string{groupID},
		MinCount:         awssdk.Int32(1),
		MaxCount:         awssdk.Int32(1),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags:         runTags(spec.RunID, name),
			},
		},
	})
	if err != nil {
		return "", handleAWSError(err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("RunInstances returned no instances")
	}
	return awssdk.ToString(out.Instances[0].InstanceId), nil
}

// waitForPublicIP polls DescribeInstances at a fixed interval until the
// instance reports a public IP or the deadline passes.
func (p *Provider) waitForPublicIP(ctx context.Context, instanceID, runID string) (*models.Instance, error) {
	deadline := time.Now().Add(p.pollTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		if err != nil {
			return nil, handleAWSError(err)
		}
		if inst := firstInstance(out); inst != nil && inst.PublicIpAddress != nil {
			return toInstance(*inst, runID), nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("instance %s: %w", instanceID, provider.ErrIPTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) Destroy(ctx context.Context, runID string) error {
	out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:" + models.RunIDKey), Values: []string{runID}},
			{Name: awssdk.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return handleAWSError(err)
	}

	var ids []string
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			ids = append(ids, awssdk.ToString(inst.InstanceId))
		}
	}

	if len(ids) > 0 {
		p.log.WithField("instance_ids", ids).Info("Terminating instances")
		if _, err := p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
			return handleAWSError(err)
		}
		if err := p.waitForTermination(ctx, ids); err != nil {
			return err
		}
	}

	if err := p.deleteKeyPairs(ctx, runID); err != nil {
		return err
	}
	return p.deleteSecurityGroups(ctx, runID)
}

func (p *Provider) waitForTermination(ctx context.Context, ids []string) error {
	deadline := time.Now().Add(p.pollTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids})
		if err != nil {
			return handleAWSError(err)
		}
		terminated := true
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				if inst.State != nil && inst.State.Name != types.InstanceStateNameTerminated {
					terminated = false
				}
			}
		}
		if terminated {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for instances %v to terminate", ids)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Provider) deleteKeyPairs(ctx context.Context, runID string) error {
	out, err := p.client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:" + models.RunIDKey), Values: []string{runID}},
		},
	})
	if err != nil {
		return handleAWSError(err)
	}
	for _, kp := range out.KeyPairs {
		p.log.WithField("key_name", awssdk.ToString(kp.KeyName)).Info("Deleting key pair")
		if _, err := p.client.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyPairId: kp.KeyPairId}); err != nil {
			return handleAWSError(err)
		}
	}
	return nil
}

func (p *Provider) deleteSecurityGroups(ctx context.Context, runID string) error {
	out, err := p.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:" + models.RunIDKey), Values: []string{runID}},
		},
	})
	if err != nil {
		return handleAWSError(err)
	}
	for _, sg := range out.SecurityGroups {
		p.log.WithField("security_group", awssdk.ToString(sg.GroupName)).Info("Deleting security group")
		if _, err := p.client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: sg.GroupId}); err != nil {
			return handleAWSError(err)
		}
	}
	return nil
}

func (p *Provider) List(ctx context.Context) ([]models.Instance, error) {
	out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: awssdk.String("tag:" + models.ManagedByKey), Values: []string{models.ManagedByValue}},
			{Name: awssdk.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return nil, handleAWSError(err)
	}

	var instances []models.Instance
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			if inst.InstanceId == nil {
				continue
			}
			runID := ""
			for _, tag := range inst.Tags {
				if awssdk.ToString(tag.Key) == models.RunIDKey {
					runID = awssdk.ToString(tag.Value)
				}
			}
			instances = append(instances, *toInstance(inst, runID))
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Name == instances[j].Name {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].Name < instances[j].Name
	})
	return instances, nil
}

func firstInstance(out *ec2.DescribeInstancesOutput) *types.Instance {
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil
	}
	return &out.Reservations[0].Instances[0]
}

func toInstance(inst types.Instance, runID string) *models.Instance {
	m := &models.Instance{
		ID:               awssdk.ToString(inst.InstanceId),
		Provider:         models.ProviderAWS,
		RunID:            runID,
		PublicIPAddress:  awssdk.ToString(inst.PublicIpAddress),
		PrivateIPAddress: awssdk.ToString(inst.PrivateIpAddress),
		MachineType:      string(inst.InstanceType),
		AdminUser:        adminUser,
		Tags:             make(map[string]string),
	}
	if inst.State != nil {
		m.State = string(inst.State.Name)
	}
	if inst.Placement != nil {
		m.Location = awssdk.ToString(inst.Placement.AvailabilityZone)
	}
	if inst.LaunchTime != nil {
		m.LaunchedAt = *inst.LaunchTime
	}
	for _, tag := range inst.Tags {
		key := awssdk.ToString(tag.Key)
		value := awssdk.ToString(tag.Value)
		m.Tags[key] = value
		if key == "Name" {
			m.Name = value
		}
	}
	return m
}

func runTags(runID, name string) []types.Tag {
	return []types.Tag{
		{Key: awssdk.String("Name"), Value: awssdk.String(name)},
		{Key: awssdk.String(models.ManagedByKey), Value: awssdk.String(models.ManagedByValue)},
		{Key: awssdk.String(models.RunIDKey), Value: awssdk.String(runID)},
	}
}
