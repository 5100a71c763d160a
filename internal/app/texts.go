package app

// User-facing copy, grouped by flow. Keep replies short, Telegram clients
// render long messages poorly on phones.
const (
	textWelcome = "👋 Hi %s!\n\n" +
		"You are subscribed. New drops land here automatically.\n\n" +
		"/catalog — browse everything\n" +
		"/resync — re-send the full catalog\n" +
		"/help — all commands"

	textWelcomeAdminHint = "\n\n🛠 You are an operator: send media to start a draft, or use /admin."

	textHelp = "Commands:\n\n" +
		"/start — subscribe\n" +
		"/catalog — browse content\n" +
		"/resync — re-send everything you have access to\n" +
		"/help — this message"

	textUnknownCommand = "Unknown command. Try /help."

	textCatalogHeader = "📺 Catalog — tap to view:"
	textCatalogEmpty  = "The catalog is empty for now. Check back soon!"

	textResyncStarted = "🔄 Resync queued, content is on its way."

	textContentGone   = "This content is no longer available."
	textInternalError = "Something went wrong, please try again."
)

// Admin panel and content management.
const (
	textAdminPanel = "🛠 Operator panel"

	textAdminAddHelp = "Send one or more photos, videos or documents to open a media draft, " +
		"or use /draft for a text-only post."

	textManageHeader = "📋 Published content — tap to delete:"
	textManageEmpty  = "Nothing is published yet."

	textDeleteConfirm = "Delete “%s”? Subscribers keep what was already delivered."
	textDeleted       = "🗑 Deleted."
)

// Draft flow.
const (
	textDraftReplaced = "⚠️ Your previous draft was replaced by this one."

	textDraftCard = "📝 Draft (%s, %d file(s))\n\n" +
		"Description: %s\n" +
		"Price: %s\n\n" +
		"Fill in the description, set a price, then publish."

	textPromptDescription = "✏️ Send the description as your next message. " +
		"The first line becomes the title."
	textPromptPricePreset = "⭐ Pick a price:"
	textPromptCustomPrice = "⭐ Send the price in stars as a whole number (0 = free)."

	textBadPrice         = "That is not a valid price. Send a whole number ≥ 0."
	textEmptyDescription = "The description cannot be empty. Try again."

	textPublished               = "🚀 “%s” published, broadcasting to subscribers."
	textPublishNeedsDescription = "Add a description before publishing."
	textPublishWhileAwaiting    = "Finish the field you are entering first (or /cancel)."
	textPublishFailed           = "Could not save the draft, it is still open. Try publishing again."

	textDraftCancelled = "✖️ Draft discarded."
	textNoDraft        = "You have no open draft. Send media or use /draft to start one."
)

// Payments.
const (
	textCheckoutGone = "This content is no longer for sale."

	textPaymentThanks = "✅ Payment received, thank you! Here is “%s”:"

	textPaidContentGone = "Payment received, but the content record is missing. " +
		"Please contact the channel operator."
	textPaidDeliveryRetry = "Delivery hiccup, your purchase is saved. Open /catalog and tap the item to get it."
)
