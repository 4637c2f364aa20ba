package statestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sony/gobreaker"
)

// dynamoDomainStateIndex is the secondary index on (domain, state)
// backing QueryByDomainState.
const dynamoDomainStateIndex = "domain-state-index"

// dynamoMaxBatchGet mirrors BatchGetItem's 100-key-per-call limit.
const dynamoMaxBatchGet = 100

// dynamoMaxBatchWrite mirrors BatchWriteItem's 25-item-per-call limit.
const dynamoMaxBatchWrite = 25

// dynamoOptimisticRetries bounds the read-modify-write loop UpdateIf runs
// to emulate an arbitrary Condition/Updates pair atomically: DynamoDB's
// native ConditionExpression only works against predicates known at call
// time, but statestore.Condition is an arbitrary closure supplied by the state
// machine in internal/urlstate. UpdateIf instead reads the item, evaluates
// cond in Go, and writes back with ConditionExpression pinned to the
// version it read, retrying on a lost race the same bounded number of
// times a DynamoDB transaction library would.
const dynamoOptimisticRetries = 5

// dynamodbAPI is the subset of *dynamodb.Client DynamoStore needs, narrowed
// so tests can supply a fake instead of a live table.
type dynamodbAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore is the production Store backend. Every call is
// routed through a circuit breaker, same discipline as blobstore.S3Store
// and queue.SQSQueue, so a degraded table surfaces as a degraded health
// check instead of stalling every worker on the same dependency.
type DynamoStore struct {
	client  dynamodbAPI
	table   string
	breaker *gobreaker.CircuitBreaker
}

// NewDynamoStore constructs a DynamoStore over table, using an existing
// *dynamodb.Client.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "dynamodb-" + table,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// dynamoItem is the on-table shape of a URLRecord, plus the version
// counter UpdateIf's optimistic concurrency loop depends on.
type dynamoItem struct {
	URLHash         string `dynamodbav:"url_hash"`
	URL             string `dynamodbav:"url"`
	Domain          string `dynamodbav:"domain"`
	State           string `dynamodbav:"state"`
	LeaseHolder     string `dynamodbav:"lease_holder,omitempty"`
	LeaseAcquiredAt *int64 `dynamodbav:"lease_acquired_at,omitempty"`
	LeaseExpiresAt  *int64 `dynamodbav:"lease_expires_at,omitempty"`
	LastCrawledAt   *int64 `dynamodbav:"last_crawled_at,omitempty"`
	RawBlobKey      string `dynamodbav:"raw_blob_key,omitempty"`
	ParsedBlobKey   string `dynamodbav:"parsed_blob_key,omitempty"`
	RetryCount      int    `dynamodbav:"retry_count"`
	LastError       string `dynamodbav:"last_error,omitempty"`
	NextEligibleAt  *int64 `dynamodbav:"next_eligible_at,omitempty"`
	CreatedAt       int64  `dynamodbav:"created_at"`
	UpdatedAt       int64  `dynamodbav:"updated_at"`
	Version         int64  `dynamodbav:"version"`
}

func toDynamoItem(r URLRecord, version int64) dynamoItem {
	return dynamoItem{
		URLHash:         r.URLHash,
		URL:             r.URL,
		Domain:          r.Domain,
		State:           string(r.State),
		LeaseHolder:     r.LeaseHolder,
		LeaseAcquiredAt: timeToUnixPtr(r.LeaseAcquiredAt),
		LeaseExpiresAt:  timeToUnixPtr(r.LeaseExpiresAt),
		LastCrawledAt:   timeToUnixPtr(r.LastCrawledAt),
		RawBlobKey:      r.RawBlobKey,
		ParsedBlobKey:   r.ParsedBlobKey,
		RetryCount:      r.RetryCount,
		LastError:       r.LastError,
		NextEligibleAt:  timeToUnixPtr(r.NextEligibleAt),
		CreatedAt:       r.CreatedAt.Unix(),
		UpdatedAt:       r.UpdatedAt.Unix(),
		Version:         version,
	}
}

func fromDynamoItem(it dynamoItem) URLRecord {
	return URLRecord{
		URLHash:         it.URLHash,
		URL:             it.URL,
		Domain:          it.Domain,
		State:           State(it.State),
		LeaseHolder:     it.LeaseHolder,
		LeaseAcquiredAt: unixPtrToTime(it.LeaseAcquiredAt),
		LeaseExpiresAt:  unixPtrToTime(it.LeaseExpiresAt),
		LastCrawledAt:   unixPtrToTime(it.LastCrawledAt),
		RawBlobKey:      it.RawBlobKey,
		ParsedBlobKey:   it.ParsedBlobKey,
		RetryCount:      it.RetryCount,
		LastError:       it.LastError,
		NextEligibleAt:  unixPtrToTime(it.NextEligibleAt),
		CreatedAt:       time.Unix(it.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(it.UpdatedAt, 0).UTC(),
	}
}

func timeToUnixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func unixPtrToTime(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

func (s *DynamoStore) getItem(ctx context.Context, urlHash string) (dynamoItem, bool, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"url_hash": &types.AttributeValueMemberS{Value: urlHash},
			},
			ConsistentRead: aws.Bool(true),
		})
	})
	if err != nil {
		return dynamoItem{}, false, newUnavailable(err.Error())
	}
	resp := out.(*dynamodb.GetItemOutput)
	if len(resp.Item) == 0 {
		return dynamoItem{}, false, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return dynamoItem{}, false, newUnavailable(err.Error())
	}
	return item, true, nil
}

func (s *DynamoStore) Get(ctx context.Context, urlHash string) (URLRecord, bool, error) {
	item, found, err := s.getItem(ctx, urlHash)
	if err != nil || !found {
		return URLRecord{}, found, err
	}
	return fromDynamoItem(item), true, nil
}

func (s *DynamoStore) PutIfAbsent(ctx context.Context, record URLRecord) (bool, error) {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	av, err := attributevalue.MarshalMap(toDynamoItem(record, 0))
	if err != nil {
		return false, newUnavailable(err.Error())
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(url_hash)"),
		})
	})
	if err == nil {
		return true, nil
	}
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	return false, newUnavailable(err.Error())
}

// UpdateIf emulates the fabric's single atomic, linearizable-per-key
// conditional-update primitive via optimistic concurrency: read, evaluate
// cond against the current record in Go, apply update, and write back
// pinned to the version just read. A ConditionalCheckFailedException means
// another worker won the race in between; UpdateIf retries up to
// dynamoOptimisticRetries times before surfacing Conflict, the same
// "loser gets Conflict and skips the message" contract section 4.4 names.
func (s *DynamoStore) UpdateIf(ctx context.Context, urlHash string, cond Condition, update Updates) (bool, error) {
	for attempt := 0; attempt < dynamoOptimisticRetries; attempt++ {
		item, found, err := s.getItem(ctx, urlHash)
		if err != nil {
			return false, err
		}
		if !found {
			return false, newNotFound("no record for " + urlHash)
		}
		current := fromDynamoItem(item)
		if !cond(current) {
			return false, nil
		}
		next := current
		update(&next)
		next.UpdatedAt = time.Now()

		av, err := attributevalue.MarshalMap(toDynamoItem(next, item.Version+1))
		if err != nil {
			return false, newUnavailable(err.Error())
		}
		_, err = s.breaker.Execute(func() (interface{}, error) {
			return s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.table),
				Item:                av,
				ConditionExpression: aws.String("version = :v"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(item.Version, 10)},
				},
			})
		})
		if err == nil {
			return true, nil
		}
		if isConditionalCheckFailed(err) {
			continue // lost the race this round; re-read and retry
		}
		return false, newUnavailable(err.Error())
	}
	return false, newConflict("exhausted optimistic retries for " + urlHash)
}

func (s *DynamoStore) QueryByDomainState(ctx context.Context, domain string, state State, limit int) ([]URLRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(dynamoDomainStateIndex),
		KeyConditionExpression: aws.String("domain = :d AND #s = :st"),
		ExpressionAttributeNames: map[string]string{
			"#s": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":  &types.AttributeValueMemberS{Value: domain},
			":st": &types.AttributeValueMemberS{Value: string(state)},
		},
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.Query(ctx, input)
	})
	if err != nil {
		return nil, newUnavailable(err.Error())
	}
	resp := out.(*dynamodb.QueryOutput)
	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
		return nil, newUnavailable(err.Error())
	}
	records := make([]URLRecord, len(items))
	for i, it := range items {
		records[i] = fromDynamoItem(it)
	}
	return records, nil
}

func (s *DynamoStore) BatchGet(ctx context.Context, urlHashes []string) (map[string]URLRecord, error) {
	out := make(map[string]URLRecord, len(urlHashes))
	for start := 0; start < len(urlHashes); start += dynamoMaxBatchGet {
		end := start + dynamoMaxBatchGet
		if end > len(urlHashes) {
			end = len(urlHashes)
		}
		keys := make([]map[string]types.AttributeValue, end-start)
		for i, h := range urlHashes[start:end] {
			keys[i] = map[string]types.AttributeValue{"url_hash": &types.AttributeValueMemberS{Value: h}}
		}
		resp, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					s.table: {Keys: keys},
				},
			})
		})
		if err != nil {
			return nil, newUnavailable(err.Error())
		}
		batchOut := resp.(*dynamodb.BatchGetItemOutput)
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(batchOut.Responses[s.table], &items); err != nil {
			return nil, newUnavailable(err.Error())
		}
		for _, it := range items {
			out[it.URLHash] = fromDynamoItem(it)
		}
	}
	return out, nil
}

func (s *DynamoStore) BatchPut(ctx context.Context, records []URLRecord) error {
	now := time.Now()
	for start := 0; start < len(records); start += dynamoMaxBatchWrite {
		end := start + dynamoMaxBatchWrite
		if end > len(records) {
			end = len(records)
		}
		reqs := make([]types.WriteRequest, end-start)
		for i, r := range records[start:end] {
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			r.UpdatedAt = now
			av, err := attributevalue.MarshalMap(toDynamoItem(r, 0))
			if err != nil {
				return newUnavailable(err.Error())
			}
			reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}
		}
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: reqs},
			})
		})
		if err != nil {
			return newUnavailable(err.Error())
		}
	}
	return nil
}

// Scan implements the reclaim sweep's read side. Scan.filter is an
// arbitrary Go closure, so there is no generic way to push it into a
// DynamoDB FilterExpression; instead Scan narrows server-side to
// IN_PROGRESS items (the only state the fabric's reclaim sweep ever asks
// about, per internal/lease.StoreScanner) and applies filter client-side,
// capped at limit.
func (s *DynamoStore) Scan(ctx context.Context, filter ScanFilter, limit int) ([]URLRecord, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("#s = :st"),
		ExpressionAttributeNames: map[string]string{
			"#s": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(StateInProgress)},
		},
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.Scan(ctx, input)
	})
	if err != nil {
		return nil, newUnavailable(err.Error())
	}
	resp := out.(*dynamodb.ScanOutput)
	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
		return nil, newUnavailable(err.Error())
	}
	var records []URLRecord
	for _, it := range items {
		r := fromDynamoItem(it)
		if filter == nil || filter(r) {
			records = append(records, r)
		}
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func isConditionalCheckFailed(err error) bool {
	var cce *types.ConditionalCheckFailedException
	return errors.As(err, &cce)
}
