package valuestore

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vectier/cache"
)

// DDBClient is the subset of the DynamoDB API DynamoStore uses.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// batchGetLimit is the DynamoDB maximum number of keys per BatchGetItem.
const batchGetLimit = 100

// DynamoStore keeps vectors in a DynamoDB table.
//
// Table schema:
//   - Partition key: iid (number)
//   - Attribute: value (binary), an encoded vector block
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vectier-vectors \
//	  --attribute-definitions AttributeName=iid,AttributeType=N \
//	  --key-schema AttributeName=iid,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoStore struct {
	client DDBClient
	table  string
	codec  Codec

	mu  sync.RWMutex
	ids *roaring.Bitmap
}

// NewDynamoStore creates a store on table. Call Load to pick up ids written
// by earlier sessions.
func NewDynamoStore(client DDBClient, table string, codec Codec) *DynamoStore {
	return &DynamoStore{client: client, table: table, codec: codec, ids: roaring.New()}
}

func idAttr(id cache.ID) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(id), 10)}
}

func parseIDAttr(av types.AttributeValue) (cache.ID, error) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("valuestore: invalid iid attribute")
	}
	id, err := strconv.ParseUint(n.Value, 10, 32)
	if err != nil {
		return 0, err
	}
	return cache.ID(id), nil
}

// Load scans the table for stored ids.
func (s *DynamoStore) Load(ctx context.Context) error {
	ids, err := s.scanIDs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ids.Clear()
	s.ids.AddMany(ids)
	s.mu.Unlock()
	return nil
}

func (s *DynamoStore) scanIDs(ctx context.Context) ([]cache.ID, error) {
	var (
		ids   []cache.ID
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.table),
			ProjectionExpression: aws.String("iid"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, item := range out.Items {
			id, err := parseIDAttr(item["iid"])
			if err != nil {
				return nil, unavailable("scan", err)
			}
			ids = append(ids, id)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return ids, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) decodeItem(item map[string]types.AttributeValue) ([]float32, error) {
	b, ok := item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, unavailable("decode", errors.New("invalid value attribute"))
	}
	v, err := s.codec.Decode(b.Value)
	if err != nil {
		return nil, unavailable("decode", err)
	}
	return v, nil
}

func (s *DynamoStore) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{"iid": idAttr(id)},
	})
	if err != nil {
		return nil, unavailable("get", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return s.decodeItem(out.Item)
}

// BulkGet issues BatchGetItem calls of at most 100 keys and retries
// unprocessed keys until none remain.
func (s *DynamoStore) BulkGet(ctx context.Context, ids []cache.ID) ([]Result, error) {
	found := make(map[cache.ID][]float32, len(ids))
	for start := 0; start < len(ids); start += batchGetLimit {
		chunk := ids[start:min(start+batchGetLimit, len(ids))]
		keys := make([]map[string]types.AttributeValue, 0, len(chunk))
		seen := make(map[cache.ID]struct{}, len(chunk))
		for _, id := range chunk {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			keys = append(keys, map[string]types.AttributeValue{"iid": idAttr(id)})
		}

		req := map[string]types.KeysAndAttributes{s.table: {Keys: keys}}
		for len(req) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: req})
			if err != nil {
				return nil, unavailable("bulk get", err)
			}
			for _, item := range out.Responses[s.table] {
				id, err := parseIDAttr(item["iid"])
				if err != nil {
					return nil, unavailable("bulk get", err)
				}
				v, err := s.decodeItem(item)
				if err != nil {
					return nil, err
				}
				found[id] = v
			}
			req = out.UnprocessedKeys
		}
	}

	res := make([]Result, len(ids))
	for i, id := range ids {
		v, ok := found[id]
		res[i] = Result{ID: id, Vector: v, Found: ok}
	}
	return res, nil
}

func (s *DynamoStore) Set(ctx context.Context, id cache.ID, v []float32) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"iid":   idAttr(id),
			"value": &types.AttributeValueMemberB{Value: data},
		},
	})
	if err != nil {
		return unavailable("set", err)
	}
	s.mu.Lock()
	s.ids.Add(id)
	s.mu.Unlock()
	return nil
}

// Clear deletes every item in the table.
func (s *DynamoStore) Clear(ctx context.Context) error {
	ids, err := s.scanIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       map[string]types.AttributeValue{"iid": idAttr(id)},
		})
		if err != nil {
			return unavailable("delete", err)
		}
	}
	s.mu.Lock()
	s.ids.Clear()
	s.mu.Unlock()
	return nil
}

func (s *DynamoStore) RandomID(context.Context) (cache.ID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return randomFrom(s.ids)
}
