package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raritygate/internal/adapters/out/memory"
	raritydom "raritygate/internal/domain/rarity"
	"raritygate/internal/domain/txview"
)

const (
	testColl = "coll"
	testAuth = "auth"
)

type fakeScoreFiles map[string][]byte

func (f fakeScoreFiles) ReadScoreFile(_ context.Context, ref string) ([]byte, error) {
	b, ok := f[ref]
	if !ok {
		return nil, errors.New("object not found")
	}
	return b, nil
}

func newUsecase(t *testing.T) (*GateUsecase, *recordingObserver) {
	t.Helper()
	uc := NewGateUsecase(
		memory.NewRarityTableRepositoryMem(),
		fakeCatalog{},
		fakeDeriver{},
		fakeAssets{"assetA": "https://meta/1.json", "assetB": "https://meta/0.json"},
		fakeVerifier{},
		nil,
		0,
		ProgramMenagerie,
	)
	uc.SetClock(func() time.Time { return testNow })
	obs := &recordingObserver{}
	uc.SetObserver(obs)
	return uc, obs
}

func initTable(t *testing.T, uc *GateUsecase, thresholds []uint8, scores []byte) {
	t.Helper()
	_, err := uc.InitTable(context.Background(), InitTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, InitMessage(testColl, thresholds, "")),
		Thresholds:    thresholds,
	})
	require.NoError(t, err)
	if len(scores) > 0 {
		_, err = uc.ExtendTable(context.Background(), ExtendTableInput{
			CollectionKey: testColl,
			Authority:     testAuth,
			Signature:     fakeSign(testAuth, ExtendMessage(testColl, 0, scores, testNow)),
			Values:        scores,
			IssuedAt:      testNow,
		})
		require.NoError(t, err)
	}
}

func TestInitTable(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()

	tbl, err := uc.InitTable(ctx, InitTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, InitMessage(testColl, []uint8{20, 80}, "")),
		Thresholds:    []uint8{20, 80},
	})
	require.NoError(t, err)
	assert.Equal(t, "table-coll", tbl.ID)
	assert.Equal(t, uint8(254), tbl.Bump)
	assert.Equal(t, ProgramMenagerie, tbl.MintProgram)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, testNow, tbl.CreatedAt)

	_, err = uc.InitTable(ctx, InitTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, InitMessage(testColl, nil, "")),
	})
	assert.ErrorIs(t, err, raritydom.ErrConflict)
}

func TestInitTable_Rejects(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()

	_, err := uc.InitTable(ctx, InitTableInput{CollectionKey: " "})
	assert.ErrorIs(t, err, raritydom.ErrInvalidCollection)

	_, err = uc.InitTable(ctx, InitTableInput{CollectionKey: testColl, Thresholds: []uint8{5, 1}})
	assert.ErrorIs(t, err, raritydom.ErrInvalidThresholds)

	_, err = uc.InitTable(ctx, InitTableInput{CollectionKey: testColl, Authority: testAuth, Signature: "forged"})
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)

	_, err = uc.InitTable(ctx, InitTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, InitMessage(testColl, nil, "candy")),
		MintProgram:   "candy",
	})
	assert.ErrorIs(t, err, raritydom.ErrResolutionFailed)

	_, err = uc.GetTable(ctx, testColl)
	assert.ErrorIs(t, err, raritydom.ErrTableNotFound)
}

func TestExtendTable_AuthorityOnly(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{1, 2, 3})

	// 署名は正しいが authority ではない
	_, err := uc.ExtendTable(ctx, ExtendTableInput{
		CollectionKey: testColl,
		Authority:     "mallory",
		Signature:     fakeSign("mallory", ExtendMessage(testColl, 0, []byte{100}, testNow)),
		Values:        []byte{100},
		IssuedAt:      testNow,
	})
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)

	// 署名が別の値に対するもの
	_, err = uc.ExtendTable(ctx, ExtendTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, ExtendMessage(testColl, 0, []byte{1}, testNow)),
		Values:        []byte{100},
		IssuedAt:      testNow,
	})
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)

	tbl, err := uc.GetTable(ctx, testColl)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, tbl.Scores.Bytes())
}

func TestExtendTable_OverflowLeavesTableUnchanged(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{1, 2, 3})

	values := []byte{9, 9}
	start := uint64(raritydom.MaxScores - 1)
	_, err := uc.ExtendTable(ctx, ExtendTableInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, ExtendMessage(testColl, start, values, testNow)),
		StartIndex:    start,
		Values:        values,
		IssuedAt:      testNow,
	})
	assert.ErrorIs(t, err, raritydom.ErrIndexOutOfBounds)

	tbl, err := uc.GetTable(ctx, testColl)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestValidatePredictive(t *testing.T) {
	uc, obs := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{100, 100, 100, 100})

	res, err := uc.ValidatePredictive(ctx, testColl, 100, 5)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "predicted", res.Source)
	assert.NotEmpty(t, res.AssetID)

	res2, err := uc.ValidatePredictive(ctx, testColl, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, res, res2)
	assert.Equal(t, []string{"predicted/accept", "predicted/accept"}, obs.calls)

	_, err = uc.ValidatePredictive(ctx, "missing", 0, 0)
	assert.ErrorIs(t, err, raritydom.ErrTableNotFound)
}

func TestValidatePredictive_EmptyTable(t *testing.T) {
	uc, obs := newUsecase(t)
	initTable(t, uc, nil, nil)

	_, err := uc.ValidatePredictive(context.Background(), testColl, 0, 1)
	assert.ErrorIs(t, err, raritydom.ErrNoRarityData)
	assert.Equal(t, []string{"predicted/error"}, obs.calls)
}

func TestValidateByURI(t *testing.T) {
	uc, obs := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, []uint8{50}, []byte{10, 90})

	res, err := uc.ValidateByURI(ctx, testColl, "assetA", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Index)
	assert.Equal(t, "https://meta/1.json", res.URI)
	assert.Equal(t, "Legendary", res.TierName)

	res, err = uc.ValidateByURI(ctx, testColl, "assetB", 50)
	assert.ErrorIs(t, err, raritydom.ErrRarityBelowThreshold)
	assert.Equal(t, uint8(10), res.Score)
	assert.False(t, res.Accepted)

	_, err = uc.ValidateURI(ctx, testColl, "https://meta/2.json", 0)
	assert.ErrorIs(t, err, raritydom.ErrIndexOutOfBounds)

	assert.Equal(t, []string{"uri_parsed/accept", "uri_parsed/reject", "uri_parsed/error"}, obs.calls)
}

func TestValidateByIntrospection(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 20, 30, 95})

	view := mintTx(t, concat(menagerieMint, le64(3)))
	res, err := uc.ValidateByIntrospection(ctx, IntrospectionInput{CollectionKey: testColl, MinScore: 90, View: view})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Index)
	assert.Equal(t, ProgramMenagerie, res.MintProgram)
	assert.Equal(t, int64(-1), res.RelativePosition)

	view = mintTx(t, concat(menagerieMint, le64(0)))
	_, err = uc.ValidateByIntrospection(ctx, IntrospectionInput{CollectionKey: testColl, MinScore: 90, View: view})
	assert.ErrorIs(t, err, raritydom.ErrRarityBelowThreshold)

	noMint, err := txview.Locate([]txview.Instruction{{ProgramID: "Other"}, {ProgramID: testSelf}}, testSelf)
	require.NoError(t, err)
	_, err = uc.ValidateByIntrospection(ctx, IntrospectionInput{CollectionKey: testColl, View: noMint})
	assert.ErrorIs(t, err, raritydom.ErrNotFound)

	res, err = uc.ValidateByIntrospection(ctx, IntrospectionInput{
		CollectionKey: testColl,
		View:          mintTx(t, concat(menagerieMint, le64(3))),
		MintProgram:   ProgramMenagerie,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Index)
}

func TestValidateByIntrospection_MintProgramIsBoundToTable(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 60, 95})

	// 本物の Menagerie ミント (index 0) の後ろに、レアな URI を名乗る Core CreateV1 を置く
	view, err := txview.Locate([]txview.Instruction{
		{ProgramID: testMenagerie, Data: concat(menagerieMint, le64(0))},
		{ProgramID: testCore, Accounts: []string{"asset", testColl}, Data: concat(mplCoreCreateV1, []byte{0}, borshString("x"), borshString("https://meta/2.json"))},
		{ProgramID: testSelf},
	}, testSelf)
	require.NoError(t, err)

	res, err := uc.ValidateByIntrospection(ctx, IntrospectionInput{CollectionKey: testColl, MinScore: 90, View: view})
	assert.ErrorIs(t, err, raritydom.ErrRarityBelowThreshold)
	assert.Equal(t, uint64(0), res.Index)
	assert.False(t, res.Accepted)

	res, err = uc.ValidateByIntrospection(ctx, IntrospectionInput{
		CollectionKey: testColl,
		MinScore:      90,
		View:          view,
		MintProgram:   ProgramMplCore,
	})
	assert.ErrorIs(t, err, raritydom.ErrResolutionFailed)
	assert.False(t, res.Accepted)
	assert.Equal(t, ProgramMenagerie, res.MintProgram)
}

func TestValidateByIntrospection_LogsOfOtherProgramsIgnored(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 60, 95})

	view := mintTx(t, concat([]byte{1, 2, 3, 4, 5, 6, 7, 8}, le64(0)))
	res, err := uc.ValidateByIntrospection(ctx, IntrospectionInput{
		CollectionKey: testColl,
		MinScore:      90,
		View:          view,
		Logs:          []string{"Program SomeOtherProg invoke [1]", "Program log: 0 2 0 0", "Program SomeOtherProg success"},
	})
	assert.ErrorIs(t, err, raritydom.ErrUnrecognizedPayload)
	assert.False(t, res.Accepted)

	res, err = uc.ValidateByIntrospection(ctx, IntrospectionInput{
		CollectionKey: testColl,
		MinScore:      90,
		View:          view,
		Logs:          []string{"Program MENAGERIE invoke [1]", "Program log: 0 2 0 0", "Program MENAGERIE success"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Index)
}

func TestRecordMintAndStatistics(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, []uint8{50}, []byte{10, 60, 70})

	record := func(idx *uint64, asset string, count uint64, minter string) (raritydom.MintRecord, error) {
		return uc.RecordMint(ctx, RecordMintInput{
			CollectionKey: testColl,
			Authority:     testAuth,
			Signature:     fakeSign(testAuth, RecordMessage(testColl, asset, count, minter, idx, testNow)),
			MintIndex:     idx,
			AssetID:       asset,
			MintCount:     count,
			Minter:        minter,
			IssuedAt:      testNow,
		})
	}

	i1, i2, far := uint64(1), uint64(2), uint64(999)
	rec, err := record(&i1, "a1", 1, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	require.NotNil(t, rec.RarityScore)
	assert.Equal(t, uint8(60), *rec.RarityScore)

	_, err = record(&i2, "a2", 2, "bob")
	require.NoError(t, err)
	rec, err = record(&far, "a3", 3, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec.RarityScore)

	_, err = uc.RecordMint(ctx, RecordMintInput{CollectionKey: testColl, Authority: testAuth, Signature: "x", Minter: "m"})
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)

	st, err := uc.GetStatistics(ctx, testColl)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.TotalMints)
	assert.Equal(t, 2, st.RecordsWithRarity)
	require.Len(t, st.Tiers, 2)
	assert.Equal(t, uint64(2), st.Tiers[1].Count)
	assert.Equal(t, "alice", st.TopMinters[0].Minter)
}

func TestCheckIndices(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 60, 70, 40})

	res, err := uc.CheckIndices(ctx, testColl, []uint64{0, 1, 9}, 50)
	require.NoError(t, err)
	assert.Equal(t, []IndexScore{{Index: 1, Score: 60, TierName: "Common"}}, res.Eligible)
	assert.Equal(t, []IndexScore{{Index: 0, Score: 10, TierName: "Common"}}, res.Ineligible)
	assert.Equal(t, []uint64{9}, res.Missing)
	assert.Equal(t, 3, res.Stats.TotalChecked)
	assert.InDelta(t, 70.0/3.0, res.Stats.AverageRarity, 1e-9)

	res, err = uc.CheckIndices(ctx, testColl, nil, 50)
	require.NoError(t, err)
	require.Len(t, res.Eligible, 2)
	assert.Equal(t, uint64(2), res.Eligible[1].Index)
	assert.InDelta(t, 65.0, res.Stats.AverageRarity, 1e-9)
}

func TestImportTable(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, nil)

	in := ImportTableInput{CollectionKey: testColl, Authority: testAuth, Source: "scores.json"}
	_, err := uc.ImportTable(ctx, in)
	assert.ErrorIs(t, err, ErrScoreFilesNotConfigured)

	uc.SetScoreFiles(fakeScoreFiles{
		"scores.json": []byte(`{"rarityScores":[{"index":2,"score":88.8},{"index":0,"score":3}]}`),
		"bad.json":    []byte(`{"rarityScores":[{"index":0,"score":300}]}`),
	})
	in.IssuedAt = testNow
	in.Signature = fakeSign(testAuth, ExtendMessage(testColl, 0, []byte{3, 0, 88}, testNow))
	tbl, err := uc.ImportTable(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 88}, tbl.Scores.Bytes())

	in.Source = "bad.json"
	_, err = uc.ImportTable(ctx, in)
	assert.ErrorIs(t, err, raritydom.ErrInvalidScoreFile)

	in.Source = "missing.json"
	_, err = uc.ImportTable(ctx, in)
	assert.Error(t, err)
}

func TestRecordMint_SignatureBindsMintIndex(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 95})

	signed, tampered := uint64(0), uint64(1)
	_, err := uc.RecordMint(ctx, RecordMintInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		Signature:     fakeSign(testAuth, RecordMessage(testColl, "a1", 1, "alice", &signed, testNow)),
		MintIndex:     &tampered,
		AssetID:       "a1",
		MintCount:     1,
		Minter:        "alice",
		IssuedAt:      testNow,
	})
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)

	st, err := uc.GetStatistics(ctx, testColl)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.TotalMints)
}

func TestSignedUpdates_ReplayAndExpiry(t *testing.T) {
	uc, _ := newUsecase(t)
	ctx := context.Background()
	initTable(t, uc, nil, []byte{10, 20})

	extend := func(values []byte, issuedAt time.Time) error {
		_, err := uc.ExtendTable(ctx, ExtendTableInput{
			CollectionKey: testColl,
			Authority:     testAuth,
			Signature:     fakeSign(testAuth, ExtendMessage(testColl, 0, values, issuedAt)),
			Values:        values,
			IssuedAt:      issuedAt,
		})
		return err
	}

	// initTable で使った {10, 20} の署名をそのまま再送しても戻せない
	require.NoError(t, extend([]byte{90, 90}, testNow.Add(time.Second)))
	assert.ErrorIs(t, extend([]byte{10, 20}, testNow), raritydom.ErrUnauthorizedUpdate)

	assert.ErrorIs(t, extend([]byte{1}, testNow.Add(-DefaultSignatureTTL-time.Second)), raritydom.ErrUnauthorizedUpdate)
	assert.ErrorIs(t, extend([]byte{1}, testNow.Add(DefaultSignatureTTL+time.Second)), raritydom.ErrUnauthorizedUpdate)
	assert.ErrorIs(t, extend([]byte{1}, time.Time{}), raritydom.ErrUnauthorizedUpdate)

	tbl, err := uc.GetTable(ctx, testColl)
	require.NoError(t, err)
	assert.Equal(t, []byte{90, 90}, tbl.Scores.Bytes())

	rec := RecordMintInput{
		CollectionKey: testColl,
		Authority:     testAuth,
		AssetID:       "a1",
		MintCount:     1,
		Minter:        "alice",
		IssuedAt:      testNow,
	}
	rec.Signature = fakeSign(testAuth, RecordMessage(testColl, "a1", 1, "alice", nil, testNow))
	_, err = uc.RecordMint(ctx, rec)
	require.NoError(t, err)
	_, err = uc.RecordMint(ctx, rec)
	assert.ErrorIs(t, err, raritydom.ErrUnauthorizedUpdate)
}

func TestSignatureLedger_ForgetsExpired(t *testing.T) {
	l := newSignatureLedger(time.Minute)
	require.NoError(t, l.admit("sig", testNow, testNow))
	assert.ErrorIs(t, l.admit("sig", testNow, testNow), raritydom.ErrUnauthorizedUpdate)

	later := testNow.Add(2 * time.Minute)
	require.NoError(t, l.admit("other", later, later))
	assert.NotContains(t, l.seen, "sig")
	assert.ErrorIs(t, l.admit("sig", testNow, later), raritydom.ErrUnauthorizedUpdate)
}
