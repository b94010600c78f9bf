package utils

import "strings"

// Static deny-set of disposable email providers
var disposableDomains = loadDisposableDomains()

func loadDisposableDomains() map[string]bool {
	domains := make(map[string]bool)
	for _, d := range strings.Split(disposableDomainList, "\n") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains[d] = true
		}
	}
	return domains
}

const disposableDomainList = `
0-mail.com
0clickemail.com
10minutemail.com
10minutemail.co.za
20minutemail.com
30minutemail.com
33mail.com
anonbox.net
anonymbox.com
bugmenot.com
deadaddress.com
discard.email
discardmail.com
dispostable.com
dodgeit.com
dontsendmespam.de
dumpyemail.com
e4ward.com
emailsensei.com
fakeinbox.com
getairmail.com
getonemail.com
guerrillamail.biz
guerrillamail.com
guerrillamail.de
guerrillamail.net
guerrillamail.org
guerrillamailblock.com
harakirimail.com
incognitomail.com
jetable.org
mail-temp.com
maildrop.cc
mailcatch.com
maileater.com
mailexpire.com
mailinator.com
mailinator.net
mailinator.org
mailinator2.com
mailnesia.com
mailnull.com
mailsac.com
meltmail.com
mintemail.com
mytemp.email
mytrashmail.com
neverbox.com
nospammail.net
notmailinator.com
quickinbox.com
rejectmail.com
sharklasers.com
sneakemail.com
sogetthis.com
spam4.me
spamavert.com
spambox.us
spamfree24.org
spamgourmet.com
spamhole.com
spaml.com
tempail.com
temp-mail.io
temp-mail.org
tempe-mail.com
tempemail.com
tempemail.net
tempinbox.com
tempmail.com
tempmail.it
tempmail.org
tempmail2.com
tempmailaddress.com
tempomail.fr
temporaryinbox.com
thankyou2010.com
throwawayemailaddress.com
throwawaymail.com
trash-mail.at
trash-mail.com
trash-mail.de
trashdevil.com
trashmail.at
trashmail.com
trashmail.de
trashmail.me
trashmail.net
trashmail.org
trashymail.com
tyldd.com
wegwerfemail.de
wegwerfmail.net
wh4f.org
willselfdestruct.com
yopmail.com
yopmail.fr
yopmail.net
zippymail.info
zoemail.org
`
