package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/opsgate/triago/pkg/schema"
)

// OwnerDirectory resolves a resource identifier to its owning team or user.
// A false second return means the directory has no answer for this resource.
type OwnerDirectory interface {
	LookupOwner(ctx context.Context, resourceID string) (string, bool, error)
}

// describeSecurityGroupsAPI abstracts the EC2 call used, for testability.
type describeSecurityGroupsAPI interface {
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

const ownerTagKey = "Owner"

// EC2OwnerDirectory resolves security group owners from their Owner tag.
type EC2OwnerDirectory struct {
	client describeSecurityGroupsAPI
}

func NewEC2OwnerDirectory(client *ec2.Client) *EC2OwnerDirectory {
	return &EC2OwnerDirectory{client: client}
}

func newEC2OwnerDirectoryWithClient(client describeSecurityGroupsAPI) *EC2OwnerDirectory {
	return &EC2OwnerDirectory{client: client}
}

// LookupOwner implements OwnerDirectory for security group identifiers.
// Non-security-group resources are reported as unresolved rather than an error.
func (d *EC2OwnerDirectory) LookupOwner(ctx context.Context, resourceID string) (string, bool, error) {
	if !strings.HasPrefix(resourceID, "sg-") {
		return "", false, nil
	}

	out, err := d.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{resourceID},
	})
	if err != nil {
		return "", false, fmt.Errorf("describe security group %s: %w", resourceID, err)
	}

	for _, group := range out.SecurityGroups {
		if owner := tagValue(group.Tags, ownerTagKey); owner != "" {
			return owner, true, nil
		}
	}
	return "", false, nil
}

func tagValue(tags []ec2types.Tag, key string) string {
	for _, tag := range tags {
		if tag.Key != nil && *tag.Key == key && tag.Value != nil {
			return *tag.Value
		}
	}
	return ""
}

// LookupOwnerTool resolves the owner of a resource by consulting its
// directories in order; the first one with an answer wins.
type LookupOwnerTool struct {
	dirs   []OwnerDirectory
	logger *slog.Logger
}

func NewLookupOwnerTool(logger *slog.Logger, dirs ...OwnerDirectory) *LookupOwnerTool {
	return &LookupOwnerTool{dirs: dirs, logger: logger}
}

func (t *LookupOwnerTool) Name() string { return "aws.lookup_owner" }

func (t *LookupOwnerTool) Description() string {
	return "Looks up the owning team or user of a cloud resource"
}

func (t *LookupOwnerTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	resourceID := stringParam(args, "resourceId", "")
	if resourceID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "resourceId is required").
			WithDetails(map[string]any{"tool": t.Name()})
	}

	for _, dir := range t.dirs {
		owner, ok, err := dir.LookupOwner(ctx, resourceID)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeTool, "owner lookup failed").WithCause(err)
		}
		if ok {
			return map[string]any{"owner": owner}, nil
		}
	}

	t.logger.WarnContext(ctx, "no owner resolved", slog.String("resource_id", resourceID))
	return map[string]any{"owner": ""}, nil
}
