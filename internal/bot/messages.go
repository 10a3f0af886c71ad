package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgStartPrompt   = `
		Send me a photo of an item and I'll estimate what it sells for.

		Add a caption with the item's name for better results.`
	MsgHelp = `
		*How it works*
		1. Send a photo of the item, optionally with a caption like _Sony WH-1000XM4_
		2. I look at the photo, search the web for similar listings and collect prices
		3. You get an average, a median, a price range and the best matching listings

		/history shows your most recent estimates.`
	MsgSendPhoto = "Send a photo to get a price estimate."
)

// =============================================================================
// Estimate messages
// =============================================================================

const (
	MsgNoPricesFound     = "No prices found for this item. Try another photo or add the item's name as a caption."
	MsgPhotoDownloadFail = "Could not download the photo. Please try again."
	MsgEstimateHeader    = "*Estimated price: $%s*"
	MsgEstimateMedian    = "Median: $%s"
	MsgEstimateRange     = "Range: $%.2f – $%.2f"
	MsgEstimateConf      = "Confidence: %s"
	MsgEstimateListings  = "*Comparable listings*"
)

// =============================================================================
// History messages
// =============================================================================

const (
	MsgHistoryEmpty  = "No estimates yet."
	MsgHistoryHeader = "*Recent estimates*\n"
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Give a number."
	MsgAdminUserAdded       = "✅ User `%d` added."
	MsgAdminUserRemoved     = "✅ User `%d` removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "*Allowed users:*\n"
)
