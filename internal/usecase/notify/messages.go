package notify

import (
	"fmt"
	"math/rand"
	"strings"

	"learner-retention/internal/domain"
)

// motivationalPool — фиксированный набор мотивационных сообщений
// для низкого уровня риска.
var motivationalPool = []string{
	"Great learners keep showing up. A short session today keeps your momentum going!",
	"Every lesson you finish is a step closer to your goal. Why not take one now?",
	"Consistency beats intensity. Ten minutes of learning today will pay off.",
	"Your future self will thank you for the progress you make today.",
	"Small steps, big results. Jump back into your course when you have a moment.",
}

// pickMotivational выбирает случайное сообщение из пула.
func pickMotivational(rng *rand.Rand) string {
	return motivationalPool[rng.Intn(len(motivationalPool))]
}

// nextMilestone подсказывает ближайшую веху по среднему прогрессу курсов.
func nextMilestone(avgProgress float64) string {
	pct := avgProgress * 100
	switch {
	case pct < 25:
		return "Next milestone: reach 25% completion in your courses."
	case pct < 50:
		return "Next milestone: reach 50% completion - you are getting there!"
	case pct < 75:
		return "Next milestone: reach 75% completion - over halfway done!"
	case pct < 100:
		return "Next milestone: 100% completion - the finish line is in sight!"
	default:
		return "All courses complete - time to pick your next challenge!"
	}
}

func displayName(l domain.Learner) string {
	name := strings.TrimSpace(l.Profile.FirstName)
	if name == "" {
		return "there"
	}
	return name
}

// highTierEmail — письмо для высокого риска.
func highTierEmail(l domain.Learner) domain.MessagePayload {
	return domain.MessagePayload{
		Subject: "We miss you! Let's get your learning back on track",
		Body: fmt.Sprintf(
			"Hi %s,\n\nWe noticed you have not been active in your courses lately. "+
				"Your learning goals are still within reach - picking up where you left off is the hardest part, and we are here to help.\n\n"+
				"Reply to this email or reach out to your mentor if anything is blocking you.\n\nThe Learning Team",
			displayName(l)),
	}
}

// highTierSMS — эскалация для давно не заходивших.
func highTierSMS(l domain.Learner) domain.MessagePayload {
	return domain.MessagePayload{
		Body: fmt.Sprintf("Hi %s, your courses are waiting! Log back in to keep your progress alive. Need help? Just reply to this message.", displayName(l)),
	}
}

// mediumTierEmail — письмо со ссылками на поддержку.
func mediumTierEmail(l domain.Learner) domain.MessagePayload {
	return domain.MessagePayload{
		Subject: "A little nudge for your learning goals",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour recent course activity has slowed down a bit. "+
				"If the material feels hard, our support resources and study groups can make a real difference.\n\n"+
				"Browse the help center or book a session with a mentor - both are one click away from your dashboard.\n\nThe Learning Team",
			displayName(l)),
	}
}

// highTierSuggestions — действия, предлагаемые внутри приложения.
var highTierSuggestions = []string{
	"Resume your most recent course from where you left off",
	"Set a weekly learning goal you can realistically keep",
	"Book a 15-minute check-in with a mentor",
}

// mediumTierSupport — ресурсы поддержки для среднего уровня.
var mediumTierSupport = []string{
	"Visit the help center for course guides",
	"Join a study group for your current course",
}
