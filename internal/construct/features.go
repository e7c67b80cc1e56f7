package construct

// FeatureVector reports which capabilities a construct has configured. It
// is consumed by code generators to pick the cheapest correct dispatch path
// for the construct; it never changes runtime behavior.
type FeatureVector struct {
	HasAuth             bool `json:"hasAuth"`
	HasServices         bool `json:"hasServices"`
	HasDatabase         bool `json:"hasDatabase"`
	HasBodyValidation   bool `json:"hasBodyValidation"`
	HasQueryValidation  bool `json:"hasQueryValidation"`
	HasParamValidation  bool `json:"hasParamValidation"`
	HasAudits           bool `json:"hasAudits"`
	HasEvents           bool `json:"hasEvents"`
	HasRateLimit        bool `json:"hasRateLimit"`
	HasRls              bool `json:"hasRls"`
	HasOutputValidation bool `json:"hasOutputValidation"`
}

// Tier is the optimization classification assigned to a construct.
type Tier string

const (
	// TierMinimal constructs are eligible for a bare-dispatch code path.
	TierMinimal Tier = "minimal"

	// TierStandard constructs need auth/services/validation but no
	// transactional or throttling concerns.
	TierStandard Tier = "standard"

	// TierFull constructs require the full transactional/guarded path.
	TierFull Tier = "full"
)

// Features computes the construct's feature vector. RLS counts as present
// only if configured and not bypassed.
func (c *Construct) Features() FeatureVector {
	return FeatureVector{
		HasAuth:             c.authorizer != nil,
		HasServices:         len(c.services) > 0,
		HasDatabase:         c.database != "",
		HasBodyValidation:   c.body != nil,
		HasQueryValidation:  c.query != nil,
		HasParamValidation:  c.params != nil,
		HasAudits:           len(c.audits) > 0,
		HasEvents:           len(c.events) > 0,
		HasRateLimit:        c.rateLimit != nil,
		HasRls:              c.rls != nil && !c.bypassRLS,
		HasOutputValidation: c.output != nil,
	}
}

// Tier classifies the sealed construct.
func (c *Construct) Tier() Tier {
	return Classify(c.Features())
}

// Classify assigns an optimization tier from a feature vector. It is a
// pure, order-independent function of the set flags, evaluated in this
// precedence:
//
//  1. minimal: none of auth/services/database/audits/events/rateLimit/rls
//     are set; validation alone never disqualifies a construct.
//  2. full: any of audits/rateLimit/rls are set, regardless of other
//     flags.
//  3. standard: everything else.
func Classify(v FeatureVector) Tier {
	switch {
	case !v.HasAuth && !v.HasServices && !v.HasDatabase &&
		!v.HasAudits && !v.HasEvents && !v.HasRateLimit && !v.HasRls:
		return TierMinimal
	case v.HasAudits || v.HasRateLimit || v.HasRls:
		return TierFull
	default:
		return TierStandard
	}
}
