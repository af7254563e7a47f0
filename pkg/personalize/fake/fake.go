// Package fake provides an in-memory provisioning client for tests and
// local development. Resources become ACTIVE after a configurable number of
// describe calls, and deletions drain the same way, so engine loops can be
// exercised without any external service.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/recforge/recforge/pkg/models"
	"github.com/recforge/recforge/pkg/personalize"
)

type resource struct {
	kind      string
	name      string
	groupARN  string
	parentARN string
	schemaARN string
	polls     int
	failed    bool
	deleting  int
}

// Client is an in-memory personalize.Client.
type Client struct {
	mu sync.Mutex

	// PollsUntilActive is how many describe calls a resource needs before
	// it reports ACTIVE. Zero means immediately active.
	PollsUntilActive int

	// PollsUntilDeleted is how many list calls a deleting resource needs
	// before it disappears.
	PollsUntilDeleted int

	resources map[string]*resource
	seq       int
}

func NewClient() *Client {
	return &Client{
		PollsUntilActive:  1,
		PollsUntilDeleted: 1,
		resources:         make(map[string]*resource),
	}
}

var _ personalize.Client = (*Client)(nil)

// FailResource forces the named resource to report CREATE FAILED on its
// next describe call.
func (c *Client) FailResource(arn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.resources[arn]; ok {
		r.failed = true
	}
}

func (c *Client) create(kind, name, groupARN, parentARN, schemaARN string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	arn := fmt.Sprintf("arn:fake:%s/%d", kind, c.seq)

	c.resources[arn] = &resource{
		kind:      kind,
		name:      name,
		groupARN:  groupARN,
		parentARN: parentARN,
		schemaARN: schemaARN,
	}

	return arn
}

func (c *Client) describe(arn string) (models.ResourceStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[arn]
	if !ok {
		return "", fmt.Errorf("no such resource: %s", arn)
	}

	if r.failed {
		return models.StatusCreateFailed, nil
	}

	r.polls++
	if r.polls > c.PollsUntilActive {
		return models.StatusActive, nil
	}

	return "CREATE PENDING", nil
}

// list returns the live resources of one kind under the given parent,
// draining entries previously marked for deletion.
func (c *Client) list(kind, parentARN string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var arns []string

	for arn, r := range c.resources {
		if r.kind != kind {
			continue
		}

		if parentARN != "" && r.groupARN != parentARN && r.parentARN != parentARN {
			continue
		}

		if r.deleting > 0 {
			r.deleting++
			if r.deleting > c.PollsUntilDeleted {
				delete(c.resources, arn)

				continue
			}
		}

		arns = append(arns, arn)
	}

	return arns
}

func (c *Client) markDeleting(arn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.resources[arn]
	if !ok {
		return fmt.Errorf("no such resource: %s", arn)
	}

	r.deleting = 1

	return nil
}

func (c *Client) CreateDatasetGroup(_ context.Context, name, _ string) (string, error) {
	return c.create("dataset-group", name, "", "", ""), nil
}

func (c *Client) DescribeDatasetGroup(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateDataset(_ context.Context, params personalize.DatasetParams) (string, error) {
	return c.create("dataset", params.Name, params.GroupARN, "", params.SchemaARN), nil
}

func (c *Client) DescribeDataset(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateDatasetImportJob(_ context.Context, params personalize.ImportParams) (string, error) {
	return c.create("dataset-import-job", params.Name, "", params.DatasetARN, ""), nil
}

func (c *Client) DescribeDatasetImportJob(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateSolution(_ context.Context, params personalize.SolutionParams) (string, error) {
	return c.create("solution", params.Name, params.GroupARN, "", ""), nil
}

func (c *Client) CreateSolutionVersion(_ context.Context, solutionARN string) (string, error) {
	return c.create("solution-version", "", "", solutionARN, ""), nil
}

func (c *Client) DescribeSolutionVersion(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateCampaign(_ context.Context, params personalize.CampaignParams) (string, error) {
	return c.create("campaign", params.Name, "", params.SolutionVersionARN, ""), nil
}

func (c *Client) DescribeCampaign(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateRecommender(_ context.Context, params personalize.RecommenderParams) (string, error) {
	return c.create("recommender", params.Name, params.GroupARN, "", ""), nil
}

func (c *Client) DescribeRecommender(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateBatchInferenceJob(_ context.Context, params personalize.BatchJobParams) (string, error) {
	return c.create("batch-inference-job", params.Name, "", params.SolutionVersionARN, ""), nil
}

func (c *Client) DescribeBatchInferenceJob(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) CreateBatchSegmentJob(_ context.Context, params personalize.BatchJobParams) (string, error) {
	return c.create("batch-segment-job", params.Name, "", params.SolutionVersionARN, ""), nil
}

func (c *Client) DescribeBatchSegmentJob(_ context.Context, arn string) (models.ResourceStatus, error) {
	return c.describe(arn)
}

func (c *Client) FindDatasetGroupByName(_ context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for arn, r := range c.resources {
		if r.kind == "dataset-group" && r.name == name {
			return arn, nil
		}
	}

	return "", fmt.Errorf("no dataset group named %q", name)
}

func (c *Client) ListDatasets(_ context.Context, groupARN string) ([]personalize.Dataset, error) {
	arns := c.list("dataset", groupARN)

	c.mu.Lock()
	defer c.mu.Unlock()

	datasets := make([]personalize.Dataset, 0, len(arns))
	for _, arn := range arns {
		datasets = append(datasets, personalize.Dataset{
			ARN:       arn,
			SchemaARN: c.resources[arn].schemaARN,
		})
	}

	return datasets, nil
}

func (c *Client) ListEventTrackers(_ context.Context, groupARN string) ([]string, error) {
	return c.list("event-tracker", groupARN), nil
}

func (c *Client) ListSolutions(_ context.Context, groupARN string) ([]string, error) {
	return c.list("solution", groupARN), nil
}

func (c *Client) ListCampaigns(_ context.Context, solutionARN string) ([]string, error) {
	c.mu.Lock()

	// Campaigns hang off solution versions; match either the version or its
	// parent solution so cleanup listings by solution work.
	var versionARNs []string

	for arn, r := range c.resources {
		if r.kind == "solution-version" && r.parentARN == solutionARN {
			versionARNs = append(versionARNs, arn)
		}
	}

	c.mu.Unlock()

	campaigns := c.list("campaign", solutionARN)
	for _, versionARN := range versionARNs {
		campaigns = append(campaigns, c.list("campaign", versionARN)...)
	}

	return campaigns, nil
}

func (c *Client) DeleteCampaign(_ context.Context, arn string) error {
	return c.markDeleting(arn)
}

func (c *Client) DeleteSolution(_ context.Context, arn string) error {
	return c.markDeleting(arn)
}

func (c *Client) DeleteEventTracker(_ context.Context, arn string) error {
	return c.markDeleting(arn)
}

func (c *Client) DeleteDataset(_ context.Context, arn string) error {
	return c.markDeleting(arn)
}

func (c *Client) DeleteSchema(_ context.Context, _ string) error {
	return nil
}

func (c *Client) DeleteDatasetGroup(_ context.Context, arn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.resources, arn)

	return nil
}
