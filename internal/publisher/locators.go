// File: internal/publisher/locators.go
package publisher

import (
	"fmt"

	"github.com/xkilldash9x/pagepress/internal/browser"
)

// Strategy lists for the publish workflow, ordered most-stable-first. The
// trailing absolute paths mirror the page build current at the time of
// writing and exist only as a last resort; the structural entries are the
// ones expected to survive markup drift.

var notificationBlockLocators = []browser.Locator{
	browser.XPath(`//div[contains(@class, "request-notifications") and contains(@role, "dialog")]//button[contains(., "Block")]`),
	browser.XPath(`//div[contains(@data-pagelet, "NotificationPermissionsDialog")]//button[contains(., "Block")]`),
	browser.XPath(`//span[text()="Block"]/ancestor::button`),
	browser.XPath(`//button[contains(., "Block")]`),
}

var profileMenuLocators = []browser.Locator{
	browser.CSS(`div[aria-label="Account"]`),
	browser.CSS(`div[aria-label="Your profile"]`),
	browser.XPath(`//div[@aria-label="Account" and @role="button"]`),
	browser.XPath(`//div[@aria-label="Your profile" and @role="button"]`),
}

func pageMenuItemLocators(pageName string) []browser.Locator {
	return []browser.Locator{
		browser.XPath(fmt.Sprintf(`//span[normalize-space(text())=%q]/ancestor::div[@role="menuitem"]`, pageName)),
		browser.XPath(fmt.Sprintf(`//div[@role="menuitem" and .//span[normalize-space(text())=%q]]`, pageName)),
		browser.Text(pageName),
	}
}

func pageHeaderLocators(pageName string) []browser.Locator {
	return []browser.Locator{
		browser.XPath(fmt.Sprintf(`//h1[normalize-space(text())=%q]`, pageName)),
		browser.XPath(fmt.Sprintf(`//a[@aria-label and .//span[normalize-space(text())=%q]]`, pageName)),
		browser.Text(pageName),
	}
}

var createPostLocators = []browser.Locator{
	browser.XPath(`//span[normalize-space(text())="What's on your mind?"]/ancestor::div[@role="button"]`),
	browser.XPath(`//div[@role="button" and .//span[contains(text(), "on your mind")]]`),
	browser.XPath(`/html/body/div[1]/div/div[1]/div/div[3]/div/div/div[1]/div[1]/div/div[2]/div/div/div/div[2]/div/div[2]/div/div/div/div[1]/div/div[1]/span`),
}

// The composer is a Lexical content-editable region inside the post dialog.
var composerLocators = []browser.Locator{
	browser.CSS(`[data-lexical-editor] [data-lexical-text='true']`),
	browser.CSS(`div[role='dialog'] div[role='textbox'][contenteditable='true']`),
	browser.CSS(`div[role='dialog'] div[role='textbox']`),
}

var mediaTriggerLocators = []browser.Locator{
	browser.XPath(`//div[@role="dialog"]//div[@aria-label="Photo/video"]`),
	browser.XPath(`//div[@role="dialog"]//div[@aria-label="Photo/Video"]`),
	browser.XPath(`/html/body/div[1]/div/div[1]/div/div[4]/div/div/div[1]/div/div[2]/div/div/div/form/div/div[1]/div/div/div/div[2]/div[1]/div[3]/div[1]/div[1]/div/div/div`),
}

var nextButtonLocators = []browser.Locator{
	browser.XPath(`//div[@role="dialog"]//div[@role="button" and .//span[normalize-space(text())="Next"]]`),
	browser.XPath(`//div[@role="button"]//span[normalize-space(text())="Next"]`),
	browser.XPath(`/html/body/div[1]/div/div[1]/div/div[4]/div/div/div[1]/div/div[2]/div/div/div/form/div/div[1]/div/div/div/div[3]/div[3]/div/div/div/div[1]/div/span/span`),
}

var postButtonLocators = []browser.Locator{
	browser.XPath(`//div[@role='button']//span[normalize-space(text())='Post']`),
	browser.XPath(`//div[@role="dialog"]//div[@aria-label="Post" and @role="button"]`),
}
