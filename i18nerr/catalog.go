package i18nerr

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var dutch = map[string]string{
	"timeout reached": "time-out bereikt",
	"with cause:":     "met oorzaak:",

	"Failed to refresh the list of %s":                                   "Het vernieuwen van de lijst met %s is mislukt",
	"The list of %s could not be verified":                               "De lijst met %s kon niet worden geverifieerd",
	"Failed to load the cached list of %s":                               "Het laden van de opgeslagen lijst met %s is mislukt",
	"No organization found with ID: '%s'":                                "Geen organisatie gevonden met ID: '%s'",
	"No secure internet server found for organization: '%s'":             "Geen secure internet server gevonden voor organisatie: '%s'",
	"Failed to save the connection attempt":                              "Het opslaan van de verbindingspoging is mislukt",
	"Failed to restore the connection attempt":                           "Het herstellen van de verbindingspoging is mislukt",
	"Failed to remove the connection attempt":                            "Het verwijderen van de verbindingspoging is mislukt",
	"The selected profile is not available":                              "Het geselecteerde profiel is niet beschikbaar",
	"The client is not configured correctly":                             "De client is niet juist geconfigureerd",
	"Failed to open the server database in directory: '%s'":              "Het openen van de serverdatabase in map: '%s' is mislukt",
	"Server/organization discovery with this client ID is not supported": "Server/organisatie discovery wordt niet ondersteund met deze client ID",
	"The client ID: '%s' is not allowed":                                 "De client ID: '%s' is niet toegestaan",
}

func init() {
	for k, v := range dutch {
		_ = message.SetString(language.Dutch, k, v)
	}
	for k := range dutch {
		_ = message.SetString(language.English, k, k)
	}
}
