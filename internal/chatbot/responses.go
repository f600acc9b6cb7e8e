package chatbot

// Canned is a scripted reply for one emotion.
type Canned struct {
	Text        string
	Suggestions []string
}

var canned = map[string]Canned{
	Overwhelmed: {
		Text: "I hear you—that feeling of being overwhelmed is so real with ADHD. Your brain is dealing with a lot right now, and that's completely valid. 🌊\n\n" +
			"Let's use the STOP method:\n" +
			"• **Stop** - Pause what you're doing\n" +
			"• **Take a breath** - Try 7-11 breathing (breathe in for 7, out for 11)\n" +
			"• **Observe** - What's the ONE thing causing the most stress?\n" +
			"• **Proceed** - We'll tackle just that one thing\n\n" +
			"What feels most urgent right now?",
		Suggestions: []string{"Start guided breathing exercise", "Break task into micro-steps", "Set a 5-minute timer"},
	},
	Frustrated: {
		Text: "Frustration with ADHD is exhausting, and you're allowed to feel this way. Your brain works differently, and that's not a flaw—it's just how you're wired. 💙\n\n" +
			"ADHD brains need different strategies, not more willpower. Let's figure out what's blocking you right now instead of fighting against yourself.\n\n" +
			"What specifically is frustrating you? Sometimes naming it helps.",
		Suggestions: []string{"Take a 2-minute movement break", "Switch to a different task", "Use the fidget tool"},
	},
	Anxious: {
		Text: "Anxiety and ADHD often go hand-in-hand, and what you're feeling is real. Your brain's threat detection system might be working overtime right now. 🫂\n\n" +
			"Let's ground you with box breathing:\n" +
			"• Breathe in for 4 counts\n" +
			"• Hold for 4 counts\n" +
			"• Breathe out for 4 counts\n" +
			"• Hold for 4 counts\n" +
			"• Repeat 3 times\n\n" +
			"I'm here with you. Want to tell me what's making you anxious?",
		Suggestions: []string{"Start box breathing exercise", "List 3 things you can see/touch", "Talk through your worry"},
	},
	Stuck: {
		Text: "Task initiation struggles are one of the HARDEST parts of ADHD—it's not laziness, it's executive dysfunction. Your brain literally needs help getting started. 🧠\n\n" +
			"Let's use the '2-minute rule': Just commit to 2 minutes. Often starting is the only hard part.\n\n" +
			"Or we can break this task into tiny micro-steps—so small they feel almost silly. What task are you trying to start?",
		Suggestions: []string{"Use the 2-minute rule", "Body doubling (I'll sit with you virtually)", "Create task micro-steps"},
	},
	Rejected: {
		Text: "Rejection sensitivity dysphoria (RSD) is incredibly painful, and I'm so sorry you're experiencing this. What you're feeling isn't an overreaction—it's a real ADHD symptom. 💔\n\n" +
			"Remind yourself: This intense feeling will pass. RSD makes emotions feel 10x stronger than they are. The criticism might be real, but your brain is amplifying the pain.\n\n" +
			"You're not broken. You're dealing with a neurological response. Would it help to talk about what happened?",
		Suggestions: []string{"Read affirmations", "Remember past successes", "Practice self-compassion"},
	},
	Hyperfocus: {
		Text: "Hyperfocus can be both a superpower and a trap with ADHD! It's amazing that you can focus so intensely, but forgetting to eat/drink/move isn't sustainable. 🎯\n\n" +
			"**Right now:**\n" +
			"1. Stand up and stretch for 30 seconds\n" +
			"2. Drink some water\n" +
			"3. Set a timer for 45 minutes to remind you to break\n\n" +
			"Your brain needs fuel to keep going. What were you hyperfocused on?",
		Suggestions: []string{"Set break reminders", "Drink water now", "Do a 1-minute stretch"},
	},
	TimeBlind: {
		Text: "Time blindness is SO frustrating—your brain literally doesn't process time like neurotypical brains do. You didn't 'forget on purpose.' ⏰\n\n" +
			"Let's set up systems to support your brain:\n" +
			"• Visual time timers (not just alarms)\n" +
			"• Backward planning from deadlines\n" +
			"• Buffer time (always add 1.5x the time you think)\n\n" +
			"What time-related thing is causing problems right now?",
		Suggestions: []string{"Set visual timer", "Create time-blocking plan", "Add buffer time to estimates"},
	},
	Neutral: {
		Text: "Hey there! I'm here to support you with ADHD-friendly strategies. I understand that your brain works differently, and I'm here to help—not judge. 🌟\n\n" +
			"I can help with:\n" +
			"• Emotional regulation and STOP method\n" +
			"• Task initiation and breaking down overwhelm\n" +
			"• Time management strategies\n" +
			"• Dealing with rejection sensitivity\n" +
			"• Hyperfocus management\n\n" +
			"What's on your mind today?",
		Suggestions: []string{"Check my task priorities", "Practice breathing exercises", "Review my achievements"},
	},
}

// CannedFor returns the scripted reply for emotion, or the neutral one.
func CannedFor(emotion string) Canned {
	if c, ok := canned[emotion]; ok {
		return c
	}
	return canned[Neutral]
}
