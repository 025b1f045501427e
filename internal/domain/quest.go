package domain

import "time"

// QuestKind identifies a claimable quest.
type QuestKind string

// Known quest kinds. Each has an independent cooldown, counter and reward.
const (
	QuestSubscribe         QuestKind = "subscribe"
	QuestBotName           QuestKind = "bot_name"
	QuestRefLink           QuestKind = "ref_link"
	QuestDailyBonus        QuestKind = "daily_bonus"
	QuestReferralMilestone QuestKind = "referral_milestone"
)

// QuestKinds lists every known kind in a stable order.
var QuestKinds = []QuestKind{
	QuestSubscribe,
	QuestBotName,
	QuestRefLink,
	QuestDailyBonus,
	QuestReferralMilestone,
}

// questColumns maps a kind to its quest_states column prefix.
var questColumns = map[QuestKind]string{
	QuestSubscribe:         "subscribe",
	QuestBotName:           "bot_name",
	QuestRefLink:           "ref_link",
	QuestDailyBonus:        "daily_bonus",
	QuestReferralMilestone: "referral_milestone",
}

// Valid reports whether k is a known quest kind.
func (k QuestKind) Valid() bool {
	_, ok := questColumns[k]
	return ok
}

// CountColumn returns the completion counter column for k.
// It panics on unknown kinds; callers validate first.
func (k QuestKind) CountColumn() string { return k.column() + "_count" }

// LastClaimColumn returns the last-claim timestamp column for k.
func (k QuestKind) LastClaimColumn() string { return k.column() + "_last_claim" }

func (k QuestKind) column() string {
	c, ok := questColumns[k]
	if !ok {
		panic("domain: unknown quest kind " + string(k))
	}
	return c
}

// LastClaim returns the stored last-claim timestamp for k, or nil.
func (s *QuestState) LastClaim(k QuestKind) *time.Time {
	switch k {
	case QuestSubscribe:
		return s.SubscribeLastClaim
	case QuestBotName:
		return s.BotNameLastClaim
	case QuestRefLink:
		return s.RefLinkLastClaim
	case QuestDailyBonus:
		return s.DailyBonusLastClaim
	case QuestReferralMilestone:
		return s.ReferralMilestoneLastClaim
	}
	return nil
}

// Count returns the completion counter for k.
func (s *QuestState) Count(k QuestKind) int {
	switch k {
	case QuestSubscribe:
		return s.SubscribeCount
	case QuestBotName:
		return s.BotNameCount
	case QuestRefLink:
		return s.RefLinkCount
	case QuestDailyBonus:
		return s.DailyBonusCount
	case QuestReferralMilestone:
		return s.ReferralMilestoneCount
	}
	return 0
}
