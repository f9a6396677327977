package accessguard

import (
	"context"
)

// ============================================================================
// AUTHORIZATION GATE
// ============================================================================

// CheckOutcome is the terminal state of one access check. A resolution
// failure returns the zero value together with the error; only a real
// policy decision gets a named outcome.
type CheckOutcome string

const (
	// OutcomeAllowed: no restriction matched and the host policy agreed.
	OutcomeAllowed CheckOutcome = "allowed"
	// OutcomeDenied: an applicable restriction blocked the operation.
	OutcomeDenied CheckOutcome = "denied"
	// OutcomeHostPolicy: restrictions passed but the host policy denied.
	OutcomeHostPolicy CheckOutcome = "host-policy"
	// OutcomeSkipped: privileged identity, registry warming up, or entity
	// unknown; restrictions were not evaluated at all.
	OutcomeSkipped CheckOutcome = "skipped"
)

// skipsRestrictions reports whether the check must bypass restriction
// evaluation entirely and fall through to the host policy.
func (e *Engine) skipsRestrictions(id Identity, model string) bool {
	if e.protected[id.UserID] {
		return true
	}
	if e.registry == nil || !e.registry.Ready() {
		return true
	}
	return !e.registry.HasModel(model)
}

// hostCheck delegates to the host permission layer when one is wired.
func (e *Engine) hostCheck(ctx context.Context, id Identity, model, op string) error {
	if e.host == nil {
		return nil
	}
	return e.host.CheckAccess(ctx, id, model, op)
}

// Check runs one CRUD permission check. Restrictions only ever narrow
// the host policy: a pass here still consults the host, and a skipped
// evaluation delegates entirely.
func (e *Engine) Check(ctx context.Context, id Identity, model, op string) (CheckOutcome, error) {
	if e.skipsRestrictions(id, model) {
		if err := e.hostCheck(ctx, id, model, op); err != nil {
			return OutcomeHostPolicy, err
		}
		return OutcomeSkipped, nil
	}
	dec, err := e.ModelRules(ctx, id, model)
	if err != nil {
		return "", err
	}
	if dec.HidesOperation(op) {
		return OutcomeDenied, accessDenied(model, op)
	}
	if err := e.hostCheck(ctx, id, model, op); err != nil {
		return OutcomeHostPolicy, err
	}
	return OutcomeAllowed, nil
}

// RecordDomain narrows the host's record-visibility filter with the
// resolved deny-expression for (entity, operation). The deny-expression
// is negated with the negation distributed through the connectives so
// the result stays a flat filter the host can append to.
func (e *Engine) RecordDomain(ctx context.Context, id Identity, model, op string) (Domain, error) {
	var base Domain
	if e.host != nil {
		d, err := e.host.RecordDomain(ctx, id, model, op)
		if err != nil {
			return nil, err
		}
		base = d
	}
	if e.skipsRestrictions(id, model) {
		return base, nil
	}
	dec, err := e.DomainRules(ctx, id, model)
	if err != nil {
		return nil, err
	}
	deny := dec.DenyFor(op)
	if len(deny) == 0 {
		return base, nil
	}
	allowed, err := DistributeNot(deny)
	if err != nil {
		e.log.Error("deny-expression negation failed", "model", model, "op", op, "error", err.Error())
		return base, nil
	}
	return AND(base, allowed), nil
}

// CheckLogin is called during credential validation, before the
// credentials themselves are verified. A non-privileged identity
// targeted by any applicable rule set with login disabled is rejected.
func (e *Engine) CheckLogin(ctx context.Context, id Identity) error {
	if e.protected[id.UserID] {
		return nil
	}
	dec, err := e.GlobalRules(ctx, id)
	if err != nil {
		return err
	}
	if dec.DisableLogin {
		return &AccessDeniedError{Reason: "login is disabled by your administrator"}
	}
	return nil
}

// DebugAllowed reports whether the identity may enter debug mode. The
// web layer strips the debug parameter and redirects instead of
// denying the request when this returns false.
func (e *Engine) DebugAllowed(ctx context.Context, id Identity) bool {
	if e.protected[id.UserID] {
		return true
	}
	dec, err := e.GlobalRules(ctx, id)
	if err != nil {
		e.log.Error("debug-mode resolution failed", "user_id", id.UserID, "error", err.Error())
		return true
	}
	return !dec.DisableDebug
}

// ActionBinding is one toolbar/binding entry the host offers on an
// entity: a plain action or a report.
type ActionBinding struct {
	ActionID string `json:"action_id"`
	Name     string `json:"name"`
	Report   bool   `json:"report"`
}

// FilterBindings removes restricted actions and reports from a bindings
// list before it is returned to the presentation layer.
func (e *Engine) FilterBindings(ctx context.Context, id Identity, model string, bindings []ActionBinding) ([]ActionBinding, error) {
	if e.skipsRestrictions(id, model) {
		return bindings, nil
	}
	dec, err := e.ModelRules(ctx, id, model)
	if err != nil {
		return nil, err
	}
	out := make([]ActionBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Report && containsString(dec.RestrictedReportIDs, b.ActionID) {
			continue
		}
		if !b.Report && containsString(dec.RestrictedActionIDs, b.ActionID) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// FilterActionViews removes hidden view types from an action's view
// list. Hiding every view type of an action leaves nothing to render,
// so that configuration is reported as a denial.
func (e *Engine) FilterActionViews(ctx context.Context, id Identity, model string, viewTypes []string) ([]string, error) {
	if e.skipsRestrictions(id, model) {
		return viewTypes, nil
	}
	dec, err := e.ModelRules(ctx, id, model)
	if err != nil {
		return nil, err
	}
	if len(dec.RestrictedViewTypes) == 0 {
		return viewTypes, nil
	}
	out := make([]string, 0, len(viewTypes))
	for _, vt := range viewTypes {
		if containsString(dec.RestrictedViewTypes, vt) {
			continue
		}
		out = append(out, vt)
	}
	if len(viewTypes) > 0 && len(out) == 0 {
		return nil, &AccessDeniedError{Reason: "all view types of this action are restricted for your user"}
	}
	return out, nil
}

// VisibleMenus strips restricted menu ids from the host's menu listing.
func (e *Engine) VisibleMenus(ctx context.Context, id Identity, menuIDs []string) ([]string, error) {
	if e.protected[id.UserID] {
		return menuIDs, nil
	}
	dec, err := e.GlobalRules(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(dec.RestrictedMenuIDs) == 0 {
		return menuIDs, nil
	}
	out := make([]string, 0, len(menuIDs))
	for _, m := range menuIDs {
		if containsString(dec.RestrictedMenuIDs, m) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
