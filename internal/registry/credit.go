package registry

// CreditStatType names the credit statistics reported on the dashboard.
//
// Several names share a value (the certified and revoked variants all resolve
// to the plain balance/transferred/retired/issued columns). The aliasing is kept
// as is; callers that need to tell them apart must not switch on the value.
type CreditStatType string

const (
	CreditStatsBalance     CreditStatType = "creditBalance"
	CreditStatsTransferred CreditStatType = "creditTransferred"
	CreditStatsRetired     CreditStatType = "creditRetired"
	CreditStatsIssued      CreditStatType = "creditIssued"
	CreditStatsEstimated   CreditStatType = "creditEst"

	CreditCertifiedBalance     CreditStatType = "creditBalance"
	CreditCertifiedTransferred CreditStatType = "creditTransferred"
	CreditCertifiedRetired     CreditStatType = "creditRetired"
	CreditCertifiedIssued      CreditStatType = "creditIssued"
	CreditCertified            CreditStatType = "creditBalance"
	CreditUncertified          CreditStatType = "creditBalance"
	CreditRevoked              CreditStatType = "creditBalance"
)

// CreditStats aggregates credit totals over a set of programmes. Transfers of
// other programmes are ignored; committed ones count as transferred and leave
// the balance.
func CreditStats(programmes []Programme, transfers []ProgrammeTransfer) map[CreditStatType]int64 {
	out := map[CreditStatType]int64{
		CreditStatsEstimated:   0,
		CreditStatsIssued:      0,
		CreditStatsRetired:     0,
		CreditStatsTransferred: 0,
		CreditStatsBalance:     0,
	}
	committed := CommittedCredits(transfers)
	for _, p := range programmes {
		out[CreditStatsEstimated] += p.CreditEst
		out[CreditStatsIssued] += p.CreditIssued
		out[CreditStatsRetired] += p.CreditRetired
		out[CreditStatsTransferred] += committed[p.ProgrammeID]
		out[CreditStatsBalance] += p.AvailableCredits(committed[p.ProgrammeID])
	}
	return out
}

// CommittedCredits sums pending and accepted transfers per programme.
func CommittedCredits(transfers []ProgrammeTransfer) map[string]int64 {
	out := make(map[string]int64)
	for i := range transfers {
		if transfers[i].Committed() {
			out[transfers[i].ProgrammeID] += transfers[i].Credits
		}
	}
	return out
}

// AvailableCredits is what a new transfer may still draw from p once
// committed credits are held back.
func (p *Programme) AvailableCredits(committed int64) int64 {
	return p.CreditIssued - p.CreditRetired - committed
}
