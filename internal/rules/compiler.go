package rules

import (
	"bytes"
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// DefaultCacheSize bounds the number of compiled policies kept in memory,
// matching the original implementation's lru_cache(maxsize=256).
const DefaultCacheSize = 256

// Compiler validates rule bundles and compiles them into CompiledPolicy
// values, memoizing by the bundle's canonical-JSON SHA-256 digest.
type Compiler struct {
	mu       sync.Mutex
	cache    map[string]*list.Element
	order    *list.List
	maxSize  int
}

type cacheEntry struct {
	digest string
	policy *CompiledPolicy
}

// NewCompiler creates a Compiler with the default cache size.
func NewCompiler() *Compiler {
	return NewCompilerWithCacheSize(DefaultCacheSize)
}

// NewCompilerWithCacheSize creates a Compiler with a custom LRU bound.
func NewCompilerWithCacheSize(maxSize int) *Compiler {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Compiler{
		cache:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Validate runs schema and semantic validation, accumulating every problem
// found rather than stopping at the first. Returns nil if the bundle is
// clean.
func Validate(bundle RuleBundle) error {
	var errs ValidationErrors

	schema, err := compiledBundleSchema()
	if err != nil {
		return fmt.Errorf("rules: schema compile: %w", err)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("rules: marshal bundle: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("rules: unmarshal bundle: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		errs = append(errs, ValidationError{Location: "$", Message: err.Error()})
	}

	seenIDs := make(map[string]bool, len(bundle.Rules))
	seenPrecedence := make(map[int]string, len(bundle.Rules))
	for i, rule := range bundle.Rules {
		loc := fmt.Sprintf("rules[%d]", i)
		if seenIDs[rule.ID] {
			errs = append(errs, ValidationError{Location: loc, Message: fmt.Sprintf("duplicate rule_id %q", rule.ID)})
		}
		seenIDs[rule.ID] = true

		if owner, ok := seenPrecedence[rule.Precedence]; ok {
			errs = append(errs, ValidationError{Location: loc, Message: fmt.Sprintf("precedence %d already used by rule %q", rule.Precedence, owner)})
		} else {
			seenPrecedence[rule.Precedence] = rule.ID
		}

		if rule.Effect == EffectRequireField && rule.Field == "" {
			errs = append(errs, ValidationError{Location: loc, Message: "require_field effect needs a non-empty field"})
		}
		if rule.Effect == EffectLimitOccurrence && rule.MaxN <= 0 {
			errs = append(errs, ValidationError{Location: loc, Message: "limit_occurrence effect needs max_n > 0"})
		}
	}

	for i, rule := range bundle.Rules {
		loc := fmt.Sprintf("rules[%d]", i)
		for _, dep := range rule.Dependencies {
			if !seenIDs[dep] {
				errs = append(errs, ValidationError{Location: loc, Message: fmt.Sprintf("dependency %q does not refer to any rule in this bundle", dep)})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CanonicalJSON renders a bundle as deterministic JSON: sorted object keys,
// no insignificant whitespace. Used both for the cache digest and for the
// compiled policy's SourceJSON.
func CanonicalJSON(bundle RuleBundle) ([]byte, error) {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Digest returns the hex SHA-256 digest of a bundle's canonical JSON.
func Digest(bundle RuleBundle) (string, error) {
	canon, err := CanonicalJSON(bundle)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Compile validates and compiles a bundle, returning a cached result if the
// bundle's canonical digest was already compiled.
func (c *Compiler) Compile(bundle RuleBundle) (*CompiledPolicy, error) {
	if err := Validate(bundle); err != nil {
		return nil, err
	}

	digest, err := Digest(bundle)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if el, ok := c.cache[digest]; ok {
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return el.Value.(*cacheEntry).policy, nil
	}
	c.mu.Unlock()

	policy := partition(bundle, digest)

	canon, err := CanonicalJSON(bundle)
	if err == nil {
		policy.SourceJSON = string(canon)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[digest]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).policy, nil
	}
	el := c.order.PushFront(&cacheEntry{digest: digest, policy: policy})
	c.cache[digest] = el
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).digest)
	}
	return policy, nil
}

func partition(bundle RuleBundle, digest string) *CompiledPolicy {
	hard := make([]Rule, 0, len(bundle.Rules))
	soft := make([]Rule, 0, len(bundle.Rules))
	for _, r := range bundle.Rules {
		if r.Effect.IsHard() {
			hard = append(hard, r)
		} else {
			soft = append(soft, r)
		}
	}
	sortRules(hard)
	sortRules(soft)
	return &CompiledPolicy{
		BundleID:  bundle.BundleID,
		Digest:    digest,
		HardRules: hard,
		SoftRules: soft,
		Metadata:  bundle.Metadata,
	}
}

// sortRules orders rules by (precedence asc, salience desc, id asc), the
// deterministic order every compiler must agree on (see invariant P2).
func sortRules(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Precedence != rs[j].Precedence {
			return rs[i].Precedence < rs[j].Precedence
		}
		if rs[i].Salience != rs[j].Salience {
			return rs[i].Salience > rs[j].Salience
		}
		return rs[i].ID < rs[j].ID
	})
}
