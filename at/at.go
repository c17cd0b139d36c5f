package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Marker = "AT"

	// Response Codes
	OK          = "AT-S.OK"
	ErrorPrefix = "AT-S.ERROR"

	// HTTPEnd closes the body of HTTPGET, HTTPPOST and HTTPREQ replies.
	HTTPEnd = "\x1a\x1a\x1a"

	// Asynchronous indications look like +WIND:<code>:<description>
	IndicationPrefix = "+"
	IndicationSep    = ":"

	// IndicationFatal asks the host to hard reset the module.
	IndicationFatal = 2
)

// Commands understood by the SPWF04Sx firmware.
const (
	CmdTest           = "AT"
	CmdErase          = "AT&F"
	CmdSaveConfig     = "AT&W"
	CmdConfigDump     = "AT&V"
	CmdSSID           = "AT+S.SSIDTXT="
	CmdSetValue       = "AT+S.SCFG="
	CmdWriteConfig    = "AT+S.WCFG"
	CmdStatus         = "AT+S.STS"
	CmdWiFi           = "AT+S.WIFI="
	CmdScan           = "AT+S.SCAN"
	CmdPing           = "AT+S.PING="
	CmdReset          = "AT+CFUN=1"
	CmdHelp           = "AT+S.HELP"
	CmdFileList       = "AT+S.FSL"
	CmdFileContent    = "AT+S.FSP="
	CmdFirmwareUpdate = "AT+S.HTTPDFSUPDATE="

	CmdSocketOpen   = "AT+S.SOCKON="
	CmdSocketServer = "AT+S.SOCKD="
	CmdSocketClose  = "AT+S.SOCKC="
	CmdSocketRead   = "AT+S.SOCKR="
	CmdSocketWrite  = "AT+S.SOCKW="
	CmdSocketQuery  = "AT+S.SOCKQ="

	CmdSetTime   = "AT+S.SETTIME="
	CmdTime      = "AT+S.SETTIME"
	CmdTLSClean  = "AT+S.TLSCERT2=clean,all"
	CmdTLSCA     = "AT+S.TLSCERT=f_ca,"
	CmdTLSClient = "AT+S.TLSCERT=f_cert,"
	CmdTLSKey    = "AT+S.TLSCERT=f_key,"
	CmdTLSDomain = "AT+S.TLSDOMAIN=f_domain,"
	CmdTLSCheck  = "AT+S.TLSCERT=f_content,0"

	CmdHTTPGet     = "AT+S.HTTPGET="
	CmdHTTPPost    = "AT+S.HTTPPOST="
	CmdHTTPRequest = "AT+S.HTTPREQ="
)

type ResponseType int

const (
	TypeFinal      ResponseType = iota // AT-S.OK, AT-S.ERROR:...
	TypeIndication                     // Asynchronous notifications
	TypeData                           // Intermediate command output
)
