package kernel

import (
	"fmt"
	"time"

	"civicrun/envelope"
	"civicrun/ledger"
	"civicrun/state"
)

// execMint handles MINT: a policy-gated administrative mint that creates
// tokens with caller-provided provenance, with no CC movement.
func (k *Kernel) execMint(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.MintPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}
	if payload.Amount <= 0 {
		return ledger.Event{}, newValidationError("INVALID_AMOUNT", fmt.Errorf("%w: mint amount must be positive", ErrInvalidEnvelope))
	}
	tt := state.TokenType(payload.TokenType)

	if err := k.Policy.CheckMintCap(k.State, tt, payload.OwnerID, payload.Amount, now); err != nil {
		return ledger.Event{}, newValidationError("MINT_CAP_EXCEEDED", err)
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}
	nowStr := now.UTC().Format(time.RFC3339)

	var minted []string
	for i := 0; i < payload.Amount; i++ {
		tokenID, err := ledger.DeriveTokenID(draft.id, i, string(tt), payload.Template)
		if err != nil {
			return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
		}
		token := &state.Token{
			ID:          tokenID,
			Type:        tt,
			Template:    payload.Template,
			OwnerID:     payload.OwnerID,
			Status:      state.TokenActive,
			MintEventID: draft.id,
			ProofRefs:   append([]string(nil), payload.ProofRefs...),
			CreatedAt:   nowStr,
			UpdatedAt:   nowStr,
		}
		if err := k.State.AddToken(token); err != nil {
			return ledger.Event{}, newExecutionError("TOKEN_EXISTS", err)
		}
		minted = append(minted, tokenID)
	}

	k.Policy.RecordMint(tt, payload.OwnerID, payload.Amount)

	return k.appendEvent(draft, appendParams{
		BlueprintID:  env.ID,
		ActorID:      env.ProposerID,
		Type:         ledger.EventMint,
		TokensMinted: minted,
	}, now)
}

// execCraft handles CRAFT: burns owned ACTIVE input tokens, debits the
// craft fee to TREASURY, and mints the recipe's output tokens.
func (k *Kernel) execCraft(env envelope.Envelope, now time.Time) (ledger.Event, error) {
	var payload envelope.CraftPayload
	if err := decodePayload(env, &payload); err != nil {
		return ledger.Event{}, err
	}
	if len(payload.InputTokenIDs) == 0 {
		return ledger.Event{}, newValidationError("NO_INPUTS", fmt.Errorf("%w: craft requires at least one input token", ErrInvalidEnvelope))
	}
	if err := k.Policy.CheckCraftFee(payload.CraftFeeCC); err != nil {
		return ledger.Event{}, newValidationError("CRAFT_FEE_MISMATCH", err)
	}

	inputs := make([]*state.Token, 0, len(payload.InputTokenIDs))
	for _, id := range payload.InputTokenIDs {
		tok, err := k.State.GetToken(id)
		if err != nil {
			return ledger.Event{}, newExecutionError("TOKEN_NOT_FOUND", fmt.Errorf("%w: %v", ErrNotFound, err))
		}
		if tok.Status != state.TokenActive {
			return ledger.Event{}, newExecutionError("TOKEN_NOT_ACTIVE", fmt.Errorf("%w: token %s status %s", ErrInvalidState, tok.ID, tok.Status))
		}
		if tok.OwnerID != env.ProposerID {
			return ledger.Event{}, newExecutionError("TOKEN_NOT_OWNED", fmt.Errorf("%w: token %s not owned by %s", ErrInvalidState, tok.ID, env.ProposerID))
		}
		inputs = append(inputs, tok)
	}

	nowStr := now.UTC().Format(time.RFC3339)
	var ccChanges []state.CCChange
	if payload.CraftFeeCC > 0 {
		changes, err := k.State.TransferCC(env.ProposerID, state.TreasuryAccountID, payload.CraftFeeCC, "CRAFT_FEE", nowStr)
		if err != nil {
			return ledger.Event{}, newExecutionError("CRAFT_FEE_PAYMENT_FAILED", err)
		}
		ccChanges = changes
	}

	draft, err := k.beginEvent(env)
	if err != nil {
		return ledger.Event{}, err
	}

	burnedIDs := make([]string, 0, len(inputs))
	for _, tok := range inputs {
		tok.Status = state.TokenBurned
		tok.SpentByEventID = draft.id
		tok.UpdatedAt = nowStr
		if err := k.State.UpdateToken(tok); err != nil {
			return ledger.Event{}, newExecutionError("TOKEN_UPDATE_FAILED", err)
		}
		burnedIDs = append(burnedIDs, tok.ID)
	}

	var minted []string
	for i := 0; i < payload.Output.Amount; i++ {
		tokenID, err := ledger.DeriveTokenID(draft.id, i, payload.Output.TokenType, payload.Output.Template)
		if err != nil {
			return ledger.Event{}, newExecutionError("HASH_FAILURE", err)
		}
		token := &state.Token{
			ID:          tokenID,
			Type:        state.TokenType(payload.Output.TokenType),
			Template:    payload.Output.Template,
			OwnerID:     env.ProposerID,
			Status:      state.TokenActive,
			MintEventID: draft.id,
			ProofRefs:   append([]string(nil), burnedIDs...),
			CreatedAt:   nowStr,
			UpdatedAt:   nowStr,
		}
		if err := k.State.AddToken(token); err != nil {
			return ledger.Event{}, newExecutionError("TOKEN_EXISTS", err)
		}
		minted = append(minted, tokenID)
	}

	return k.appendEvent(draft, appendParams{
		BlueprintID:  env.ID,
		ActorID:      env.ProposerID,
		Type:         ledger.EventBlueprint,
		TokensMinted: minted,
		TokensBurned: burnedIDs,
		CCChanges:    ccChanges,
	}, now)
}
