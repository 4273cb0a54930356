package conversation

const (
	helpText = "🤖 PDBOT commands:\n" +
		"/send - send a WhatsApp message to a number\n" +
		"/youtube - download a YouTube video\n" +
		"/download - download a file from a link\n" +
		"/upload - store a file and get an access code\n" +
		"/get - retrieve a file with its access code\n" +
		"/ask - ask the AI assistant\n" +
		"/cancel - stop the current action"

	promptPhone       = "📞 Send the recipient's phone number with country code (e.g. 94712345678)."
	promptPhoneRetry  = "❗ That doesn't look like a phone number. Send at least 10 digits, e.g. 94712345678."
	promptText        = "✍️ Now send the message text."
	promptTextRetry   = "❗ The message can't be empty. Send the text to deliver."
	promptYoutubeURL  = "🎬 Send the YouTube link."
	promptYoutubeBad  = "❗ Please send a valid YouTube link (youtube.com or youtu.be)."
	promptDownloadURL = "🔗 Send the link of the file to download."
	promptDownloadBad = "❗ Please send a valid http(s) link."
	promptUpload      = "📤 Send the file you want to store (document, video, audio or photo)."
	promptUploadRetry = "❗ Please send a file: a document, video, audio or photo."
	promptCode        = "🔑 Send the access code."
	promptCodeRetry   = "❗ Please send the access code."
	promptQuery       = "🧠 What would you like to ask?"
	promptQueryRetry  = "❗ Please type your question."

	replyCancelled       = "🛑 Cancelled."
	replyNothingToCancel = "Nothing to cancel."
	replyDownloading     = "⏳ Downloading, please wait..."
	replyDownloadFailed  = "❌ Download failed. Please try again later."
	replySendFailed      = "❌ Could not deliver the file. Please try again later."
	replyStoreFailed     = "❌ Could not save the file. Please try again later."
	replyLookupFailed    = "❌ Could not look up that code. Please try again later."
	replyInvalidCode     = "❌ Invalid code. No file is stored under it."
	replyAIUnavailable   = "❌ The AI assistant is not available right now."
	replyAIFailed        = "❌ The AI assistant could not answer. Please try again later."

	fmtMessageSent   = "✅ Message sent to %s."
	fmtMessageFailed = "❌ Failed to send the message to %s."
	fmtTooLarge      = "❌ The file is too large (%s). The limit is %s."
	fmtUploadTooBig  = "❗ That file is too large (%s). The limit is %s. Send a smaller file."
	fmtCodeMinted    = "✅ File saved!\nYour access code is: %s\nShare it and use /get to retrieve the file."
)
