package registry

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/shaftpool/templateregistry/internal/hashalgo"
	"github.com/shaftpool/templateregistry/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestRegistry builds a registry with a no-op logger and a mock RPC
// client, without starting its background refresh loop.
func newTestRegistry(t *testing.T) (*TemplateRegistry, *upstream.MockRPC) {
	t.Helper()
	mock := upstream.NewMockRPC()
	reg, err := New(Config{
		Algo:                   hashalgo.SHA256D,
		InstanceID:             1,
		CoinbaseExtranonceSize: 8,
	}, mock, zap.NewNop(), nil, nil)
	require.NoError(t, err)
	return reg, mock
}

// installTestTemplate directly builds and installs a template with a given
// job id, prevhash and target, bypassing fillFromRPC so tests can pick
// targets that deterministically accept or reject a fixed share.
func installTestTemplate(reg *TemplateRegistry, jobID, prevHashHex string, target *big.Int, height int64) *BlockTemplate {
	tpl := newBlockTemplate(jobID)
	tpl.PrevHashHex = prevHashHex
	tpl.Height = height
	tpl.Version = 1
	tpl.Bits = "1d00ffff"
	tpl.NTimeBase = 1600000000
	tpl.Target = target
	tpl.Extranonce1Size = 4
	tpl.Extranonce2Size = 4
	tpl.CoinbasePrefix = []byte{0x01, 0x02, 0x03}
	tpl.CoinbaseSuffix = []byte{0x04, 0x05, 0x06}
	tpl.prevHashInternal = make([]byte, 32)
	tpl.merkleTree = NewMerkleTree(nil)
	tpl.broadcastArgs = BroadcastArgs{JobID: jobID}

	reg.AddTemplate(tpl, height)
	return tpl
}

func TestSubmitShareUnknownJob(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, _, _, _, err := reg.SubmitShare("ffff", []byte{0, 0, 0, 1}, "00000002", "5f5e1000", "deadbeef", 1)

	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, ReasonJobNotFound, submitErr.Reason)
}

func TestSubmitShareDuplicateRejected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	installTestTemplate(reg, "1", strings.Repeat("aa", 32), big.NewInt(1), 100)

	e1 := []byte{0, 0, 0, 1}
	_, _, _, _, err1 := reg.SubmitShare("1", e1, "00000002", "5f5e1000", "deadbeef", 1)
	_, _, _, _, err2 := reg.SubmitShare("1", e1, "00000002", "5f5e1000", "deadbeef", 1)

	// At difficulty 1 the share target rejects almost every hash, so the
	// first call itself may be rejected as above-target (the template's
	// target of 1 only rules out block candidacy); what this test asserts is that the
	// *second*, exact-duplicate call is always rejected as a duplicate,
	// never re-evaluated against the target.
	_ = err1
	require.Error(t, err2)
	submitErr, ok := err2.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, ReasonDuplicateShare, submitErr.Reason)
}

func TestSubmitShareNTimeOutOfRange(t *testing.T) {
	reg, _ := newTestRegistry(t)
	installTestTemplate(reg, "1", strings.Repeat("aa", 32), big.NewInt(1), 100)

	// ntime 0xffffffff (year 2106), far beyond the roll window.
	_, _, _, _, err := reg.SubmitShare("1", []byte{0, 0, 0, 1}, "00000002", "ffffffff", "deadbeef", 1)

	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, ReasonNTimeOutOfRange, submitErr.Reason)
}

func TestSubmitShareBadExtranonce2Size(t *testing.T) {
	reg, _ := newTestRegistry(t)
	installTestTemplate(reg, "1", strings.Repeat("aa", 32), big.NewInt(1), 100)

	_, _, _, _, err := reg.SubmitShare("1", []byte{0, 0, 0, 1}, "00", "5f5e1000", "deadbeef", 1)

	require.Error(t, err)
	submitErr, ok := err.(*SubmitError)
	require.True(t, ok)
	assert.Equal(t, ReasonBadExtranonce2Size, submitErr.Reason)
}

func TestSubmitShareBlockCandidateTriggersSubmitBlock(t *testing.T) {
	reg, mock := newTestRegistry(t)
	// 2^256 - 1: every possible hash is a block candidate.
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	installTestTemplate(reg, "1", strings.Repeat("aa", 32), maxTarget, 100)

	// Nonce fafc274d makes this header's double-SHA256 0x00000000a1f5...,
	// which meets the difficulty-1 share target (share difficulty 1).
	isCandidate, headerHex, primaryHashHex, shareDiff, err := reg.SubmitShare("1", []byte{0, 0, 0, 1}, "00000002", "5f5e1000", "fafc274d", 1)

	require.NoError(t, err)
	assert.True(t, isCandidate)
	assert.NotEmpty(t, headerHex)
	assert.NotEmpty(t, primaryHashHex)
	assert.Greater(t, shareDiff, 0.0)
	assert.Len(t, mock.SubmittedBlocks, 1)
}

func TestSubmitShareSolutionBlockHashSwapsPrimaryHash(t *testing.T) {
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// scrypt, because for sha256d the PoW hash and the block hash are the
	// same digest. A difficulty of 1e-12 puts the share target above 2^256,
	// so the fixed share is accepted whatever it hashes to.
	mock := upstream.NewMockRPC()
	plain, err := New(Config{Algo: hashalgo.Scrypt, InstanceID: 1, CoinbaseExtranonceSize: 8}, mock, zap.NewNop(), nil, nil)
	require.NoError(t, err)
	installTestTemplate(plain, "1", strings.Repeat("aa", 32), maxTarget, 100)
	_, _, powHex, _, err := plain.SubmitShare("1", []byte{0, 0, 0, 1}, "00000002", "5f5e1000", "deadbeef", 1e-12)
	require.NoError(t, err)

	mock2 := upstream.NewMockRPC()
	withBlockHash, err := New(Config{Algo: hashalgo.Scrypt, InstanceID: 1, CoinbaseExtranonceSize: 8, SolutionBlockHash: true}, mock2, zap.NewNop(), nil, nil)
	require.NoError(t, err)
	installTestTemplate(withBlockHash, "1", strings.Repeat("aa", 32), maxTarget, 100)
	_, _, blockHashHex, _, err := withBlockHash.SubmitShare("1", []byte{0, 0, 0, 1}, "00000002", "5f5e1000", "deadbeef", 1e-12)
	require.NoError(t, err)

	assert.NotEqual(t, powHex, blockHashHex, "solution_block_hash must swap the reported primary hash away from the raw PoW value")
}

func TestSubmitShareHeaderHexCarriesPadding(t *testing.T) {
	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	mock := upstream.NewMockRPC()
	reg, err := New(Config{Algo: hashalgo.Scrypt, InstanceID: 1, CoinbaseExtranonceSize: 8}, mock, zap.NewNop(), nil, nil)
	require.NoError(t, err)
	installTestTemplate(reg, "1", strings.Repeat("aa", 32), maxTarget, 100)

	// Difficulty 1e-12: the share target lies above 2^256, so any hash is accepted.
	_, headerHex, _, _, err := reg.SubmitShare("1", []byte{0, 0, 0, 1}, "00000002", "5f5e1000", "deadbeef", 1e-12)
	require.NoError(t, err)

	backend, err := hashalgo.New(hashalgo.Scrypt)
	require.NoError(t, err)
	paddingHex := hex.EncodeToString(backend.Padding())
	assert.True(t, strings.HasSuffix(headerHex, paddingHex), "header_hex must end with the algorithm's padding suffix")
}

func TestAddTemplateEvictsOldJobsOnChainAdvance(t *testing.T) {
	reg, _ := newTestRegistry(t)

	var sawBlock, sawTemplate []bool
	reg.onBlock = func(prevHashHex string, height int64) { sawBlock = append(sawBlock, true) }
	reg.onTemplate = func(cleanJobs bool) { sawTemplate = append(sawTemplate, cleanJobs) }

	t1 := installTestTemplate(reg, "1", strings.Repeat("aa", 32), big.NewInt(1), 100)
	t2 := installTestTemplate(reg, "2", strings.Repeat("bb", 32), big.NewInt(1), 101)

	assert.Nil(t, reg.GetJob(t1.JobID))
	assert.Equal(t, t2, reg.GetJob(t2.JobID))

	reg.mu.RLock()
	_, hasAA := reg.prevHashes[strings.Repeat("aa", 32)]
	_, hasBB := reg.prevHashes[strings.Repeat("bb", 32)]
	reg.mu.RUnlock()
	assert.False(t, hasAA)
	assert.True(t, hasBB)

	require.Len(t, sawBlock, 2) // once per install, both are new prevhashes
	require.Len(t, sawTemplate, 2)
	assert.True(t, sawTemplate[1])
}

func TestGetJobReturnsNilForStaleTemplate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	t1 := installTestTemplate(reg, "1", strings.Repeat("aa", 32), big.NewInt(1), 100)
	assert.Equal(t, t1, reg.GetJob("1"))

	installTestTemplate(reg, "2", strings.Repeat("bb", 32), big.NewInt(1), 101)
	assert.Nil(t, reg.GetJob("1"))
}

func TestDiffToTargetMonotoneDecreasing(t *testing.T) {
	reg, _ := newTestRegistry(t)

	low := reg.DiffToTarget(1)
	high := reg.DiffToTarget(1000)

	assert.Equal(t, 1, low.Cmp(high), "target at difficulty 1 must exceed target at difficulty 1000")
}

func TestDiffToTargetRiecoinIsIdentity(t *testing.T) {
	reg, err := New(Config{Algo: hashalgo.Riecoin, InstanceID: 1, CoinbaseExtranonceSize: 8}, upstream.NewMockRPC(), zap.NewNop(), nil, nil)
	require.NoError(t, err)

	target := reg.DiffToTarget(7)
	assert.Equal(t, int64(7), target.Int64())
}

func TestUpdateBlockInstallsFetchedTemplate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	reg.UpdateBlock(context.Background())

	args, ok := reg.LastBroadcastArgs()
	require.True(t, ok)
	assert.NotEmpty(t, args.JobID)
}

func TestUpdateBlockSkipsConcurrentCalls(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.updateInProgress.Store(true)

	reg.UpdateBlock(context.Background())

	_, ok := reg.LastBroadcastArgs()
	assert.False(t, ok, "update must be skipped while one is already in progress")
}
