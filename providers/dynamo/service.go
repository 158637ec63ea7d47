package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	compilerdynamo "github.com/bkio/crosscloudkit/internal/compiler/dynamo"
	"github.com/bkio/crosscloudkit/internal/codec"
	"github.com/bkio/crosscloudkit/pkg/condition"
	"github.com/bkio/crosscloudkit/pkg/database"
	"github.com/bkio/crosscloudkit/pkg/dbresult"
	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
	"github.com/bkio/crosscloudkit/pkg/primitive"
	"github.com/bkio/crosscloudkit/pkg/session"
)

const maxTableWait = 2 * time.Minute

// Provider implements database.Service over Amazon DynamoDB. It owns one
// pkg/session.Session (and therefore one DynamoDB client, spec §5 "a single
// long-lived client per backend connection") plus the compiler that
// translates Condition Trees and UpdateOps into DynamoDB's native
// expression language - Put/Get/Update/Delete/Increment never need
// internal/cas, since DynamoDB's own ConditionExpression already gives
// them atomic compare-and-swap semantics (spec: "providers that accept
// expression languages avoid the emulator"). AddToArray/RemoveFromArray
// are the one exception: they read the item, evaluate the condition
// in-process and write the whole item back through internal/cas, the same
// way providers/memdoc does (see arrayops.go).
type Provider struct {
	session    *session.Session
	compiler   *compilerdynamo.Compiler
	encryption *codec.EncryptionService
	encrypted  map[string]bool
}

// Option configures optional Provider features.
type Option func(*Provider)

// WithEncryption turns on KMS envelope encryption (spec §4 supplemented
// feature) for the named Bytes attributes, using svc for the KMS round
// trips.
func WithEncryption(svc *codec.EncryptionService, attributes ...string) Option {
	return func(p *Provider) {
		p.encryption = svc
		for _, a := range attributes {
			p.encrypted[a] = true
		}
	}
}

// New constructs a Provider over sess.
func New(sess *session.Session, opts ...Option) *Provider {
	p := &Provider{
		session:   sess,
		compiler:  compilerdynamo.New(),
		encrypted: map[string]bool{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// encryptItem seals every encrypted-configured Bytes attribute present in
// item, replacing its raw value with the JSON-shaped Envelope.
func (p *Provider) encryptItem(ctx context.Context, item database.Item) (database.Item, error) {
	if p.encryption == nil || len(p.encrypted) == 0 {
		return item, nil
	}
	out := make(database.Item, len(item))
	for k, v := range item {
		raw, ok := v.([]byte)
		if !ok || !p.encrypted[k] {
			out[k] = v
			continue
		}
		env, err := p.encryption.Encrypt(ctx, k, raw)
		if err != nil {
			return nil, fmt.Errorf("dynamo: encrypt attribute %q: %w", k, err)
		}
		out[k] = envelopeToMap(env)
	}
	return out, nil
}

// decryptItem reverses encryptItem for every attribute whose value looks
// like an Envelope.
func (p *Provider) decryptItem(ctx context.Context, item database.Item) (database.Item, error) {
	if p.encryption == nil {
		return item, nil
	}
	out := make(database.Item, len(item))
	for k, v := range item {
		if !codec.IsEnvelope(v) {
			out[k] = v
			continue
		}
		env, err := mapToEnvelope(v.(map[string]any))
		if err != nil {
			return nil, fmt.Errorf("dynamo: malformed envelope for attribute %q: %w", k, err)
		}
		plaintext, err := p.encryption.Decrypt(ctx, k, env)
		if err != nil {
			return nil, fmt.Errorf("dynamo: decrypt attribute %q: %w", k, err)
		}
		out[k] = plaintext
	}
	return out, nil
}

func envelopeToMap(env codec.Envelope) map[string]any {
	raw, _ := json.Marshal(env)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func mapToEnvelope(m map[string]any) (codec.Envelope, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return codec.Envelope{}, err
	}
	var env codec.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return codec.Envelope{}, err
	}
	return env, nil
}

func opError(op, tableName, key string, err error) dbresult.Result {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey(op, tableName, key, 412, crosscloudkiterrors.ErrConditionFailed))
	}
	return dbresult.Fail(crosscloudkiterrors.NewWithKey(op, tableName, key, 500, err))
}

// Put implements database.Service. overwriteIfExists=false adds an
// attribute_not_exists(partition key) guard, ANDed onto cond's own
// ConditionExpression; on failure Put re-reads the item to tell the two
// guards apart and report 409 (overwrite refused, spec §4.3/§6, scenario
// S4) instead of 412 (cond failed, spec §4.4).
func (p *Provider) Put(ctx context.Context, tableName string, key primitive.DbKey, item database.Item, overwriteIfExists bool, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	if err := p.ensureTable(ctx, tableName); err != nil {
		return dbresult.Fail(err)
	}
	encrypted, err := p.encryptItem(ctx, item)
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}
	spilled, err := p.maybeSpillToS3(ctx, tableName, key, encrypted)
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}
	stamped := withStorageAttrs(spilled, key)
	avItem, err := itemToAttributeValues(stamped)
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}

	compiled, err := p.compiler.CompileCondition(cond)
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}
	if !overwriteIfExists {
		compiled = namespaceCompiled(compiled, "o")
		guard := compilerdynamo.Compiled{
			Expression: "attribute_not_exists(#opk)",
			Names:      map[string]string{"#opk": partitionKeyAttr},
		}
		names, values := mergePlaceholders(guard, compiled)
		expr := guard.Expression
		if compiled.Expression != "" {
			expr = expr + " AND " + compiled.Expression
		}
		compiled = compilerdynamo.Compiled{Expression: expr, Names: names, Values: values}
	}

	input := &dynamodb.PutItemInput{TableName: aws.String(tableName), Item: avItem}
	if compiled.Expression != "" {
		input.ConditionExpression = aws.String(compiled.Expression)
		input.ExpressionAttributeNames = compiled.Names
		if av, err := valuesToAttributeValues(compiled.Values); err != nil {
			return opError("Put", tableName, key.String(), err)
		} else if len(av) > 0 {
			input.ExpressionAttributeValues = av
		}
	}
	if ret == dbresult.ReturnOldValues {
		input.ReturnValues = types.ReturnValueAllOld
	}

	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	out, err := client.PutItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if !overwriteIfExists && errors.As(err, &condErr) {
			return p.classifyPutConflict(ctx, tableName, key)
		}
		return opError("Put", tableName, key.String(), err)
	}

	var oldItem database.Item
	if ret == dbresult.ReturnOldValues && len(out.Attributes) > 0 {
		oldItem, _ = attributeValuesToItem(out.Attributes)
		oldItem = stripStorageAttrs(oldItem)
	}
	if ret == dbresult.ReturnNewValues {
		return dbresult.Ok(200, stripStorageAttrs(item))
	}
	if ret == dbresult.ReturnOldValues {
		return dbresult.Ok(200, oldItem)
	}
	return dbresult.Ok(200, nil)
}

// classifyPutConflict runs after a rejected overwriteIfExists=false Put to
// decide whether the item was already present (409, overwrite refused) or
// absent (412, cond failed against the empty item the guard let through).
func (p *Provider) classifyPutConflict(ctx context.Context, tableName string, key primitive.DbKey) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(tableName),
		Key:                  dkey,
		ProjectionExpression: aws.String(partitionKeyAttr),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return opError("Put", tableName, key.String(), err)
	}
	if len(out.Item) > 0 {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Put", tableName, key.String(), 409, crosscloudkiterrors.ErrConflict))
	}
	return dbresult.Fail(crosscloudkiterrors.NewWithKey("Put", tableName, key.String(), 412, crosscloudkiterrors.ErrConditionFailed))
}

// Get implements database.Service.
func (p *Provider) Get(ctx context.Context, tableName string, key primitive.DbKey) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Get", tableName, key.String(), err)
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(tableName), Key: dkey, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return opError("Get", tableName, key.String(), err)
	}
	if len(out.Item) == 0 {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Get", tableName, key.String(), 404, crosscloudkiterrors.ErrNotFound))
	}
	item, err := attributeValuesToItem(out.Item)
	if err != nil {
		return opError("Get", tableName, key.String(), err)
	}
	item = stripStorageAttrs(item)
	item, err = p.maybeHydrateFromS3(ctx, item)
	if err != nil {
		return opError("Get", tableName, key.String(), err)
	}
	item, err = p.decryptItem(ctx, item)
	if err != nil {
		return opError("Get", tableName, key.String(), err)
	}
	return dbresult.Ok(200, item)
}

// GetMany implements database.Service via BatchGetItem.
func (p *Provider) GetMany(ctx context.Context, tableName string, keys []primitive.DbKey) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	if len(keys) == 0 {
		return dbresult.Ok(200, []database.Item{})
	}

	keyAVs := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		dkey, err := dynamoKey(k)
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("GetMany", tableName, 400, err))
		}
		keyAVs = append(keyAVs, dkey)
	}

	var results []database.Item
	for start := 0; start < len(keyAVs); start += 100 {
		end := start + 100
		if end > len(keyAVs) {
			end = len(keyAVs)
		}
		out, err := client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{tableName: {Keys: keyAVs[start:end]}},
		})
		if err != nil {
			return dbresult.Fail(crosscloudkiterrors.New("GetMany", tableName, 500, err))
		}
		for _, av := range out.Responses[tableName] {
			item, err := attributeValuesToItem(av)
			if err != nil {
				return dbresult.Fail(crosscloudkiterrors.New("GetMany", tableName, 500, err))
			}
			item, err = p.decryptItem(ctx, item)
			if err != nil {
				return dbresult.Fail(crosscloudkiterrors.New("GetMany", tableName, 500, err))
			}
			results = append(results, stripStorageAttrs(item))
		}
	}
	if results == nil {
		results = []database.Item{}
	}
	return dbresult.Ok(200, results)
}

// Exists implements database.Service: missing item -> 404; item present but
// cond unsatisfied -> 412; both hold -> 200 (spec §4.3/§4.4).
func (p *Provider) Exists(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Exists", tableName, key.String(), err)
	}
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String(tableName), Key: dkey, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return opError("Exists", tableName, key.String(), err)
	}
	if len(out.Item) == 0 {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Exists", tableName, key.String(), 404, crosscloudkiterrors.ErrNotFound))
	}
	item, err := attributeValuesToItem(out.Item)
	if err != nil {
		return opError("Exists", tableName, key.String(), err)
	}
	item = stripStorageAttrs(item)
	satisfied, err := condition.Evaluate(cond, item)
	if err != nil {
		return opError("Exists", tableName, key.String(), err)
	}
	if !satisfied {
		return dbresult.Fail(crosscloudkiterrors.NewWithKey("Exists", tableName, key.String(), 412, crosscloudkiterrors.ErrConditionFailed))
	}
	return dbresult.Ok(200, true)
}

// Update implements database.Service.
func (p *Provider) Update(ctx context.Context, tableName string, key primitive.DbKey, ops []database.UpdateOp, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	if err := p.ensureTable(ctx, tableName); err != nil {
		return dbresult.Fail(err)
	}
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}

	updateCompiled, err := p.compiler.CompileUpdate(ops)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}
	condCompiled, err := p.compiler.CompileCondition(cond)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}
	// The update and condition expressions were compiled independently, so
	// each restarts its own #n1/:v1 placeholder counter; namespace one
	// side before merging so identical placeholder tokens never collide.
	condCompiled = namespaceCompiled(condCompiled, "c")

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(tableName),
		Key:              dkey,
		UpdateExpression: aws.String(updateCompiled.Expression),
	}
	names, values := mergePlaceholders(updateCompiled, condCompiled)
	if condCompiled.Expression != "" {
		input.ConditionExpression = aws.String(condCompiled.Expression)
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if av, err := valuesToAttributeValues(values); err != nil {
		return opError("Update", tableName, key.String(), err)
	} else if len(av) > 0 {
		input.ExpressionAttributeValues = av
	}
	switch ret {
	case dbresult.ReturnOldValues:
		input.ReturnValues = types.ReturnValueAllOld
	case dbresult.ReturnNewValues:
		input.ReturnValues = types.ReturnValueAllNew
	default:
		input.ReturnValues = types.ReturnValueNone
	}

	out, err := client.UpdateItem(ctx, input)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}
	if len(out.Attributes) == 0 {
		return dbresult.Ok(200, nil)
	}
	item, err := attributeValuesToItem(out.Attributes)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}
	item, err = p.decryptItem(ctx, item)
	if err != nil {
		return opError("Update", tableName, key.String(), err)
	}
	return dbresult.Ok(200, stripStorageAttrs(item))
}

// Delete implements database.Service.
func (p *Provider) Delete(ctx context.Context, tableName string, key primitive.DbKey, cond condition.Tree, ret dbresult.ReturnBehavior) dbresult.Result {
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Delete", tableName, key.String(), err)
	}
	compiled, err := p.compiler.CompileCondition(cond)
	if err != nil {
		return opError("Delete", tableName, key.String(), err)
	}
	input := &dynamodb.DeleteItemInput{TableName: aws.String(tableName), Key: dkey}
	if compiled.Expression != "" {
		input.ConditionExpression = aws.String(compiled.Expression)
		input.ExpressionAttributeNames = compiled.Names
		if av, err := valuesToAttributeValues(compiled.Values); err != nil {
			return opError("Delete", tableName, key.String(), err)
		} else if len(av) > 0 {
			input.ExpressionAttributeValues = av
		}
	}
	if ret == dbresult.ReturnOldValues {
		input.ReturnValues = types.ReturnValueAllOld
	}

	out, err := client.DeleteItem(ctx, input)
	if err != nil {
		return opError("Delete", tableName, key.String(), err)
	}
	if ret != dbresult.ReturnOldValues || len(out.Attributes) == 0 {
		return dbresult.Ok(200, nil)
	}
	item, err := attributeValuesToItem(out.Attributes)
	if err != nil {
		return opError("Delete", tableName, key.String(), err)
	}
	return dbresult.Ok(200, stripStorageAttrs(item))
}

// Increment implements database.Service using DynamoDB's native ADD
// operation, which atomically creates the attribute at 0 if absent. delta
// is a double (spec §4.3); the stored and returned result is an int64 if
// exact, else a float64.
func (p *Provider) Increment(ctx context.Context, tableName string, key primitive.DbKey, attribute string, delta float64, cond condition.Tree) dbresult.Result {
	if err := p.ensureTable(ctx, tableName); err != nil {
		return dbresult.Fail(err)
	}
	client, err := p.session.DynamoDB()
	if err != nil {
		return dbresult.Fail(err)
	}
	dkey, err := dynamoKey(key)
	if err != nil {
		return opError("Increment", tableName, key.String(), err)
	}

	condCompiled, err := p.compiler.CompileCondition(cond)
	if err != nil {
		return opError("Increment", tableName, key.String(), err)
	}

	names := map[string]string{"#incAttr": attribute}
	for k, v := range condCompiled.Names {
		names[k] = v
	}
	values := map[string]primitive.Primitive{":incDelta": primitive.NewDouble(delta)}
	for k, v := range condCompiled.Values {
		values[k] = v
	}
	av, err := valuesToAttributeValues(values)
	if err != nil {
		return opError("Increment", tableName, key.String(), err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       dkey,
		UpdateExpression:          aws.String("ADD #incAttr :incDelta"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: av,
		ReturnValues:              types.ReturnValueUpdatedNew,
	}
	if condCompiled.Expression != "" {
		input.ConditionExpression = aws.String(condCompiled.Expression)
	}

	out, err := client.UpdateItem(ctx, input)
	if err != nil {
		return opError("Increment", tableName, key.String(), err)
	}
	newVal, ok := out.Attributes[attribute]
	if !ok {
		return opError("Increment", tableName, key.String(), fmt.Errorf("dynamo: increment did not return attribute %q", attribute))
	}
	v, err := fromAttributeValue(newVal)
	if err != nil {
		return opError("Increment", tableName, key.String(), err)
	}
	switch v.(type) {
	case int64, float64:
		return dbresult.Ok(200, v)
	default:
		return opError("Increment", tableName, key.String(), fmt.Errorf("dynamo: attribute %q is not numeric", attribute))
	}
}

// namespaceCompiled rewrites every #nN/:vN placeholder in compiled with an
// extra tag inserted after the sigil (#n3 -> #cn3, :v2 -> :cv2), so a
// caller merging two independently compiled expressions never has two
// different placeholders collide under the same token. Longest keys are
// replaced first so "#n1" never matches as a prefix of the not-yet-replaced
// "#n10".
func namespaceCompiled(compiled compilerdynamo.Compiled, tag string) compilerdynamo.Compiled {
	keys := make([]string, 0, len(compiled.Names)+len(compiled.Values))
	for k := range compiled.Names {
		keys = append(keys, k)
	}
	for k := range compiled.Values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	rewrite := func(key string) string {
		return key[:1] + tag + key[1:]
	}

	expr := compiled.Expression
	for _, k := range keys {
		expr = strings.ReplaceAll(expr, k, rewrite(k))
	}

	names := make(map[string]string, len(compiled.Names))
	for k, v := range compiled.Names {
		names[rewrite(k)] = v
	}
	values := make(map[string]primitive.Primitive, len(compiled.Values))
	for k, v := range compiled.Values {
		values[rewrite(k)] = v
	}
	return compilerdynamo.Compiled{Expression: expr, Names: names, Values: values}
}

func mergePlaceholders(a, b compilerdynamo.Compiled) (map[string]string, map[string]primitive.Primitive) {
	names := make(map[string]string, len(a.Names)+len(b.Names))
	for k, v := range a.Names {
		names[k] = v
	}
	for k, v := range b.Names {
		names[k] = v
	}
	values := make(map[string]primitive.Primitive, len(a.Values)+len(b.Values))
	for k, v := range a.Values {
		values[k] = v
	}
	for k, v := range b.Values {
		values[k] = v
	}
	return names, values
}

func valuesToAttributeValues(values map[string]primitive.Primitive) (map[string]types.AttributeValue, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(values))
	for k, v := range values {
		av, err := primitiveToAttributeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = av
	}
	return out, nil
}
