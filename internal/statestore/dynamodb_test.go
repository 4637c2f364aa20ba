package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamoAPI is a minimal in-memory stand-in for dynamodbAPI, enough to
// exercise DynamoStore's marshal/unmarshal and conditional-write logic
// without a live table.
type fakeDynamoAPI struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamoAPI() *fakeDynamoAPI {
	return &fakeDynamoAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamoAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key := in.Key["url_hash"].(*types.AttributeValueMemberS).Value
	item, ok := f.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamoAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := in.Item["url_hash"].(*types.AttributeValueMemberS).Value
	existing, found := f.items[key]

	if in.ConditionExpression != nil {
		switch *in.ConditionExpression {
		case "attribute_not_exists(url_hash)":
			if found {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case "version = :v":
			wantVersion := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value
			gotVersion := "0"
			if found {
				gotVersion = existing["version"].(*types.AttributeValueMemberN).Value
			}
			if gotVersion != wantVersion {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	domain := in.ExpressionAttributeValues[":d"].(*types.AttributeValueMemberS).Value
	state := in.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if item["domain"].(*types.AttributeValueMemberS).Value == domain &&
			item["state"].(*types.AttributeValueMemberS).Value == state {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamoAPI) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	var out []map[string]types.AttributeValue
	var tableName string
	for table, keys := range in.RequestItems {
		tableName = table
		for _, k := range keys.Keys {
			hash := k["url_hash"].(*types.AttributeValueMemberS).Value
			if item, ok := f.items[hash]; ok {
				out = append(out, item)
			}
		}
	}
	return &dynamodb.BatchGetItemOutput{
		Responses: map[string][]map[string]types.AttributeValue{tableName: out},
	}, nil
}

func (f *fakeDynamoAPI) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			if r.PutRequest == nil {
				continue
			}
			key := r.PutRequest.Item["url_hash"].(*types.AttributeValueMemberS).Value
			f.items[key] = r.PutRequest.Item
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *fakeDynamoAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if st, ok := in.ExpressionAttributeValues[":st"]; ok &&
			item["state"].(*types.AttributeValueMemberS).Value != st.(*types.AttributeValueMemberS).Value {
			continue
		}
		out = append(out, item)
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func newTestDynamoStore() (*DynamoStore, *fakeDynamoAPI) {
	fake := newFakeDynamoAPI()
	store := NewDynamoStore(nil, "urls")
	store.client = fake
	return store, fake
}

func sampleRecord(hash string) URLRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return URLRecord{
		URLHash:   hash,
		URL:       "https://docs.example.com/guide",
		Domain:    "example.com",
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDynamoStorePutIfAbsent(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	created, err := store.PutIfAbsent(ctx, sampleRecord("hash1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.PutIfAbsent(ctx, sampleRecord("hash1"))
	require.NoError(t, err)
	assert.False(t, created, "second PutIfAbsent on the same key must not overwrite")
}

func TestDynamoStoreGetRoundTrip(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	rec := sampleRecord("hash2")
	_, err := store.PutIfAbsent(ctx, rec)
	require.NoError(t, err)

	got, found, err := store.Get(ctx, "hash2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.Domain, got.Domain)
	assert.Equal(t, rec.State, got.State)
}

func TestDynamoStoreGetMissing(t *testing.T) {
	store, _ := newTestDynamoStore()
	_, found, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDynamoStoreUpdateIfAppliesWhenConditionTrue(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	_, err := store.PutIfAbsent(ctx, sampleRecord("hash3"))
	require.NoError(t, err)

	applied, err := store.UpdateIf(ctx, "hash3",
		func(r URLRecord) bool { return r.State == StatePending },
		func(r *URLRecord) { r.State = StateInProgress; r.LeaseHolder = "worker-1" },
	)
	require.NoError(t, err)
	assert.True(t, applied)

	got, _, err := store.Get(ctx, "hash3")
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, got.State)
	assert.Equal(t, "worker-1", got.LeaseHolder)
}

func TestDynamoStoreUpdateIfSkipsWhenConditionFalse(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	_, err := store.PutIfAbsent(ctx, sampleRecord("hash4"))
	require.NoError(t, err)

	applied, err := store.UpdateIf(ctx, "hash4",
		func(r URLRecord) bool { return r.State == StateDone },
		func(r *URLRecord) { r.State = StateInProgress },
	)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestDynamoStoreUpdateIfNotFound(t *testing.T) {
	store, _ := newTestDynamoStore()
	_, err := store.UpdateIf(context.Background(), "missing",
		func(r URLRecord) bool { return true },
		func(r *URLRecord) {},
	)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDynamoStoreQueryByDomainState(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	a := sampleRecord("hash5")
	a.Domain = "example.com"
	a.State = StatePending
	b := sampleRecord("hash6")
	b.Domain = "example.com"
	b.State = StateDone
	_, _ = store.PutIfAbsent(ctx, a)
	_, _ = store.PutIfAbsent(ctx, b)

	results, err := store.QueryByDomainState(ctx, "example.com", StatePending, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hash5", results[0].URLHash)
}

func TestDynamoStoreBatchGetAndPut(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	records := []URLRecord{sampleRecord("hash7"), sampleRecord("hash8")}
	require.NoError(t, store.BatchPut(ctx, records))

	got, err := store.BatchGet(ctx, []string{"hash7", "hash8", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "hash7")
	assert.Contains(t, got, "hash8")
}

func TestDynamoStoreScanFiltersClientSide(t *testing.T) {
	store, _ := newTestDynamoStore()
	ctx := context.Background()

	inProgress := sampleRecord("hash9")
	inProgress.State = StateInProgress
	done := sampleRecord("hash10")
	done.State = StateDone
	require.NoError(t, store.BatchPut(ctx, []URLRecord{inProgress, done}))

	results, err := store.Scan(ctx, func(r URLRecord) bool { return true }, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, StateInProgress, r.State)
	}
}

func TestAttributeValueRoundTrip(t *testing.T) {
	item := toDynamoItem(sampleRecord("hashX"), 3)
	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)

	var back dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &back))
	assert.Equal(t, item.URLHash, back.URLHash)
	assert.Equal(t, int64(3), back.Version)
}
