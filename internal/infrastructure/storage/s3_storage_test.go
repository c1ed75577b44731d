package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadBucketOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*s3.CreateBucketOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func validConfig() *config.StorageConfig {
	return &config.StorageConfig{
		Endpoint:     "localhost:9000",
		Bucket:       "stock-reports",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
		Prefix:       "/reconciliation/",
	}
}

func TestNewS3ReportArchiver_Validation(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewS3ReportArchiver(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.Bucket = ""
		_, err := NewS3ReportArchiver(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.SecretKey = ""
		_, err := NewS3ReportArchiver(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key")
	})

	t.Run("builds a real client", func(t *testing.T) {
		a, err := NewS3ReportArchiver(validConfig())
		require.NoError(t, err)
		assert.NotNil(t, a.client)
		assert.Equal(t, "reconciliation", a.prefix)
	})
}

func TestS3ReportArchiver_Archive(t *testing.T) {
	client := new(mockS3)
	a, err := NewS3ReportArchiver(validConfig(), WithClient(client))
	require.NoError(t, err)

	report := &inventory.ReconciliationReport{
		GeneratedAt:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		ProductsChecked: 12,
		Discrepancies: []inventory.Discrepancy{{
			TenantID:  uuid.New(),
			ProductID: uuid.New(),
			SKU:       "FLOUR",
			Type:      inventory.DiscrepancyStockMismatch,
			Expected:  decimal.NewFromInt(10),
			Actual:    decimal.NewFromInt(9),
		}},
	}

	wantKey := "reconciliation/2026/03/04/reconciliation-20260304T050607.000000000Z.json"
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, err := io.ReadAll(in.Body)
		if err != nil {
			return false
		}
		var decoded inventory.ReconciliationReport
		if err := json.Unmarshal(body, &decoded); err != nil {
			return false
		}
		return aws.ToString(in.Bucket) == "stock-reports" &&
			aws.ToString(in.Key) == wantKey &&
			aws.ToString(in.ContentType) == "application/json" &&
			in.Metadata["discrepancies"] == "1" &&
			decoded.ProductsChecked == 12
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	location, err := a.Archive(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "s3://stock-reports/"+wantKey, location)
	client.AssertExpectations(t)
}

func TestS3ReportArchiver_ArchiveError(t *testing.T) {
	client := new(mockS3)
	a, err := NewS3ReportArchiver(validConfig(), WithClient(client))
	require.NoError(t, err)

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied")).Once()

	_, err = a.Archive(context.Background(), &inventory.ReconciliationReport{GeneratedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	_, err = a.Archive(context.Background(), nil)
	assert.Error(t, err)
}

func TestS3ReportArchiver_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		client := new(mockS3)
		a, _ := NewS3ReportArchiver(validConfig(), WithClient(client))
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(&s3.HeadBucketOutput{}, nil).Once()

		require.NoError(t, a.EnsureBucket(ctx))
		client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		client := new(mockS3)
		a, _ := NewS3ReportArchiver(validConfig(), WithClient(client))
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()
		client.On("CreateBucket", mock.Anything, mock.Anything).Return(&s3.CreateBucketOutput{}, nil).Once()

		require.NoError(t, a.EnsureBucket(ctx))
		client.AssertExpectations(t)
	})

	t.Run("other head error", func(t *testing.T) {
		client := new(mockS3)
		a, _ := NewS3ReportArchiver(validConfig(), WithClient(client))
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(nil, errors.New("forbidden")).Once()

		assert.Error(t, a.EnsureBucket(ctx))
	})
}
