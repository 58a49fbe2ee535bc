package notification

import "github.com/tinywideclouds/go-notification-bridge/pkg/value"

// Constants is the name to platform value table exposed to the application
// layer at startup.
func Constants() map[string]value.Value {
	ints := map[string]int64{
		"VISIBILITY_PUBLIC":  VisibilityPublic,
		"VISIBILITY_PRIVATE": VisibilityPrivate,
		"VISIBILITY_SECRET":  VisibilitySecret,

		"PRIORITY_DEFAULT": PriorityDefault,
		"PRIORITY_LOW":     PriorityLow,
		"PRIORITY_MIN":     PriorityMin,
		"PRIORITY_HIGH":    PriorityHigh,
		"PRIORITY_MAX":     PriorityMax,

		"DEFAULT_ALL":     DefaultAll,
		"DEFAULT_SOUND":   DefaultSound,
		"DEFAULT_VIBRATE": DefaultVibrate,
		"DEFAULT_LIGHTS":  DefaultLights,

		"BADGE_ICON_NONE":  BadgeIconNone,
		"BADGE_ICON_SMALL": BadgeIconSmall,
		"BADGE_ICON_LARGE": BadgeIconLarge,

		"GROUP_ALERT_ALL":      GroupAlertAll,
		"GROUP_ALERT_SUMMARY":  GroupAlertSummary,
		"GROUP_ALERT_CHILDREN": GroupAlertChildren,

		"IMPORTANCE_NONE":    ImportanceNone,
		"IMPORTANCE_MIN":     ImportanceMin,
		"IMPORTANCE_LOW":     ImportanceLow,
		"IMPORTANCE_DEFAULT": ImportanceDefault,
		"IMPORTANCE_HIGH":    ImportanceHigh,
	}
	categories := map[string]string{
		"CATEGORY_ALARM":          CategoryAlarm,
		"CATEGORY_CALL":           CategoryCall,
		"CATEGORY_EMAIL":          CategoryEmail,
		"CATEGORY_ERROR":          CategoryError,
		"CATEGORY_EVENT":          CategoryEvent,
		"CATEGORY_MESSAGE":        CategoryMessage,
		"CATEGORY_PROGRESS":       CategoryProgress,
		"CATEGORY_PROMO":          CategoryPromo,
		"CATEGORY_RECOMMENDATION": CategoryRecommendation,
		"CATEGORY_REMINDER":       CategoryReminder,
		"CATEGORY_SERVICE":        CategoryService,
		"CATEGORY_SOCIAL":         CategorySocial,
		"CATEGORY_STATUS":         CategoryStatus,
		"CATEGORY_SYSTEM":         CategorySystem,
		"CATEGORY_TRANSPORT":      CategoryTransport,
	}

	out := make(map[string]value.Value, len(ints)+len(categories))
	for k, v := range ints {
		out[k] = value.OfInt(v)
	}
	for k, v := range categories {
		out[k] = value.OfString(v)
	}
	return out
}
