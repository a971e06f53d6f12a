package prompt

import (
	"github.com/manifoldco/promptui"
)

// SelectString asks the user to pick one of items and returns it.
func SelectString(label string, items []string) (string, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  10,
	}

	_, result, err := prompt.Run()
	return result, wrapError(err)
}
