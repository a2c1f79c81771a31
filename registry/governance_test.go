package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

// newGovernanceFixture builds a processor with two authorized issuers and
// a threshold of 2.
func newGovernanceFixture(t *testing.T) (*Processor, *Store, [2]interfaces.Address) {
	t.Helper()

	store := NewStore()
	var issuers [2]interfaces.Address
	for i := range issuers {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		issuers[i] = cryptoutils.SignerAddress(key)
		require.NoError(t, store.AddIssuer(issuers[i]))
	}

	proc, err := NewProcessor(store, Config{
		Domain:                 cryptoutils.DefaultDomain(1337, mustAddress("0x00112233445566778899aabbccddeeff00112233")),
		Admin:                  testAdmin,
		ApprovalThreshold:      2,
		RequireRevokeSignature: true,
	}, testLogger())
	require.NoError(t, err)

	return proc, store, issuers
}

func TestGovernance_AddIssuerLifecycle(t *testing.T) {
	proc, store, issuers := newGovernanceFixture(t)
	candidate := mustAddress("0xb000000000000000000000000000000000000001")

	proposal, events, err := proc.ProposeAdd(testAdmin, candidate)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), proposal.ID, "proposal IDs start at 1")
	assert.Equal(t, interfaces.ActionAdd, proposal.Action)
	require.Len(t, events, 1)

	// Below threshold: execution is rejected.
	_, _, err = proc.Execute(testAdmin, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientApprovals)

	_, _, err = proc.Approve(issuers[0], proposal.ID)
	require.NoError(t, err)

	// Still one short of threshold 2.
	_, _, err = proc.Execute(testAdmin, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientApprovals)

	updated, _, err := proc.Approve(issuers[1], proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Approvals)

	executed, events, err := proc.Execute(testAdmin, proposal.ID)
	require.NoError(t, err)
	assert.True(t, executed.Executed)
	assert.True(t, store.IsIssuerAllowed(candidate))
	require.Len(t, events, 2)
	assert.Equal(t, "issuer_update_executed", events[0].Kind())
	assert.Equal(t, "issuer_updated", events[1].Kind())

	// Terminal state: approvals and re-execution are both rejected.
	_, _, err = proc.Approve(issuers[0], proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrProposalExecuted)
	_, _, err = proc.Execute(testAdmin, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrProposalExecuted)
}

func TestGovernance_ApprovalIdempotence(t *testing.T) {
	proc, _, issuers := newGovernanceFixture(t)

	proposal, _, err := proc.ProposeAdd(testAdmin, mustAddress("0xb000000000000000000000000000000000000002"))
	require.NoError(t, err)

	first, _, err := proc.Approve(issuers[0], proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Approvals)

	// The second approval by the same approver is rejected, not ignored.
	_, _, err = proc.Approve(issuers[0], proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyApproved)

	current, err := proc.Proposal(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), current.Approvals, "approvals incremented exactly once")
}

func TestGovernance_ApproverMustBeCurrentIssuer(t *testing.T) {
	proc, _, _ := newGovernanceFixture(t)

	proposal, _, err := proc.ProposeAdd(testAdmin, mustAddress("0xb000000000000000000000000000000000000003"))
	require.NoError(t, err)

	_, _, err = proc.Approve(mustAddress("0xcccccccccccccccccccccccccccccccccccccccc"), proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrApproverNotAllowed)
	assert.ErrorIs(t, err, interfaces.ErrAuthorization)
}

func TestGovernance_AdminOnlyEntryPoints(t *testing.T) {
	proc, _, issuers := newGovernanceFixture(t)
	stranger := issuers[0]

	_, _, err := proc.ProposeAdd(stranger, mustAddress("0xb000000000000000000000000000000000000004"))
	assert.ErrorIs(t, err, interfaces.ErrNotAdmin)

	_, _, err = proc.ProposeRotate(stranger, issuers[0], mustAddress("0xb000000000000000000000000000000000000005"))
	assert.ErrorIs(t, err, interfaces.ErrNotAdmin)

	proposal, _, err := proc.ProposeAdd(testAdmin, mustAddress("0xb000000000000000000000000000000000000006"))
	require.NoError(t, err)

	_, _, err = proc.Execute(stranger, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotAdmin)

	err = proc.SetApprovalThreshold(stranger, 1)
	assert.ErrorIs(t, err, interfaces.ErrNotAdmin)
}

func TestGovernance_ThresholdCurrentAtExecution(t *testing.T) {
	proc, _, issuers := newGovernanceFixture(t)

	proposal, _, err := proc.ProposeAdd(testAdmin, mustAddress("0xb000000000000000000000000000000000000007"))
	require.NoError(t, err)

	_, _, err = proc.Approve(issuers[0], proposal.ID)
	require.NoError(t, err)

	// One approval is below the threshold of 2 set at proposal time.
	_, _, err = proc.Execute(testAdmin, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientApprovals)

	// Lowering the threshold afterwards applies to the pending proposal.
	require.NoError(t, proc.SetApprovalThreshold(testAdmin, 1))
	executed, _, err := proc.Execute(testAdmin, proposal.ID)
	require.NoError(t, err)
	assert.True(t, executed.Executed)
}

func TestGovernance_ExecuteRevalidatesAgainstCurrentState(t *testing.T) {
	proc, store, issuers := newGovernanceFixture(t)
	candidate := mustAddress("0xb000000000000000000000000000000000000008")

	proposal, _, err := proc.ProposeAdd(testAdmin, candidate)
	require.NoError(t, err)
	_, _, err = proc.Approve(issuers[0], proposal.ID)
	require.NoError(t, err)
	_, _, err = proc.Approve(issuers[1], proposal.ID)
	require.NoError(t, err)

	// The allow-list drifted between proposal and execution: the candidate
	// was added through another path. Executing the stale proposal must
	// fail instead of double-inserting.
	require.NoError(t, store.AddIssuer(candidate))

	_, _, err = proc.Execute(testAdmin, proposal.ID)
	assert.ErrorIs(t, err, interfaces.ErrIssuerKnown)

	current, err := proc.Proposal(proposal.ID)
	require.NoError(t, err)
	assert.False(t, current.Executed, "failed execution leaves the proposal pending")
}

func TestGovernance_RotateIssuer(t *testing.T) {
	proc, store, issuers := newGovernanceFixture(t)
	replacement := mustAddress("0xb000000000000000000000000000000000000009")

	proposal, _, err := proc.ProposeRotate(testAdmin, issuers[0], replacement)
	require.NoError(t, err)

	_, _, err = proc.Approve(issuers[0], proposal.ID)
	require.NoError(t, err)
	_, _, err = proc.Approve(issuers[1], proposal.ID)
	require.NoError(t, err)

	executed, events, err := proc.Execute(testAdmin, proposal.ID)
	require.NoError(t, err)
	assert.True(t, executed.Executed)

	assert.False(t, store.IsIssuerAllowed(issuers[0]), "rotated-out issuer removed")
	assert.True(t, store.IsIssuerAllowed(replacement), "replacement authorized")
	assert.Len(t, store.Issuers(), 2)

	// Rotation emits removal and insertion of the allow-list.
	require.Len(t, events, 3)
}

func TestGovernance_ProposePreconditions(t *testing.T) {
	proc, _, issuers := newGovernanceFixture(t)

	t.Run("add existing issuer", func(t *testing.T) {
		_, _, err := proc.ProposeAdd(testAdmin, issuers[0])
		assert.ErrorIs(t, err, interfaces.ErrIssuerKnown)
	})

	t.Run("rotate unknown source", func(t *testing.T) {
		_, _, err := proc.ProposeRotate(testAdmin, mustAddress("0xdddddddddddddddddddddddddddddddddddddddd"), mustAddress("0xb00000000000000000000000000000000000000a"))
		assert.ErrorIs(t, err, interfaces.ErrIssuerUnknown)
	})

	t.Run("rotate to self", func(t *testing.T) {
		_, _, err := proc.ProposeRotate(testAdmin, issuers[0], issuers[0])
		assert.ErrorIs(t, err, interfaces.ErrRotateToSelf)
	})

	t.Run("rotate to existing issuer", func(t *testing.T) {
		_, _, err := proc.ProposeRotate(testAdmin, issuers[0], issuers[1])
		assert.ErrorIs(t, err, interfaces.ErrIssuerKnown)
	})

	t.Run("missing proposal", func(t *testing.T) {
		_, _, err := proc.Approve(issuers[0], 999)
		assert.ErrorIs(t, err, interfaces.ErrProposalNotFound)
		_, _, err = proc.Execute(testAdmin, 999)
		assert.ErrorIs(t, err, interfaces.ErrProposalNotFound)
	})
}
