package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultRuntimeFactory loads AWS's default credential chain (env vars,
// shared config, EC2/ECS instance role) for the given region and returns a
// live bedrockruntime.Client. Deployments pin a region via Deployment.Region
// (spec §3); each distinct region gets its own cached client.
func DefaultRuntimeFactory(ctx context.Context, region string) (RuntimeClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}
